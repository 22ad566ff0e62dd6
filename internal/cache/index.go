package cache

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/metrics"
)

// IndexFile is the name of the index inside a cache directory.
const IndexFile = "expr.index"

// columns per index line: id, slot, four metric triplets, area and the two
// runtimes.
const columns = 2 + 3*4 + 1 + 2

const indexHeader = `# ------------------------------------------------------------------------------------------------------------------------
# Expression cache index and metrics file
# Metrics except area are in triplets (min,typ,max)
# Format: <unique_id> <file_name> <delay> <static power> <dynamic power> <total power> <area> <mapper_runtime> <io_runtime>
# Type: <string> <int> <double (s)> <double (W)> <double (W)> <double (W)> <double (W)> <mapper_runtime (us)> <io_runtime (us)>
# ------------------------------------------------------------------------------------------------------------------------
`

// Entry is one cached expression block.
type Entry struct {
	ID     string
	Slot   int
	Result metrics.Result
}

// MappedName is the file name of the mapped netlist of slot.
func MappedName(slot int) string {
	return strconv.Itoa(slot) + ".v"
}

// PreMapName is the file name of the pre-mapping netlist of slot.
func PreMapName(slot int) string {
	return strconv.Itoa(slot) + "pre.v"
}

// FormatEntry renders e as one index line without the newline.
func FormatEntry(e Entry) string {
	r := &e.Result
	fields := make([]string, 0, columns)
	fields = append(fields, e.ID, strconv.Itoa(e.Slot))
	for _, t := range []metrics.Triplet{r.Delay, r.StaticPower, r.DynamicPower, r.TotalPower} {
		fields = append(fields, formatFloat(t.Min), formatFloat(t.Typ), formatFloat(t.Max))
	}
	fields = append(fields,
		formatFloat(r.Area),
		strconv.FormatInt(r.MapperRuntime, 10),
		strconv.FormatInt(r.IORuntime, 10))
	return strings.Join(fields, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseEntry parses one index line. The artifact paths of the result are
// left empty.
func ParseEntry(line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) != columns {
		return Entry{}, errors.Wrapf(ErrIntegrity, "index line has %d columns, want %d", len(fields), columns)
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil || slot < 0 {
		return Entry{}, errors.Wrapf(ErrIntegrity, "bad slot %q", fields[1])
	}
	nums := make([]float64, columns-2)
	for i, f := range fields[2:] {
		if nums[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Entry{}, errors.Wrapf(ErrIntegrity, "bad number %q in column %d", f, i+3)
		}
	}
	triplet := func(i int) metrics.Triplet {
		return metrics.Triplet{Min: nums[3*i], Typ: nums[3*i+1], Max: nums[3*i+2]}
	}
	return Entry{
		ID:   fields[0],
		Slot: slot,
		Result: metrics.Result{
			Delay:         triplet(0),
			StaticPower:   triplet(1),
			DynamicPower:  triplet(2),
			TotalPower:    triplet(3),
			Area:          nums[12],
			MapperRuntime: int64(nums[13]),
			IORuntime:     int64(nums[14]),
			ID:            fields[0],
		},
	}, nil
}

// ReadIndex parses every entry of an index, skipping blank and '#' lines.
func ReadIndex(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(sc.Err(), "read index")
}
