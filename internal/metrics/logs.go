package metrics

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scale factors from tool report units to SI units.
const (
	picoseconds = 1e-12
	squareMicro = 1e-12
	nanowatts   = 1e-9
)

// OSUCellArea is the area in square microns of the cells of the OSU
// standard cell library, used to total the cell counts that yosys reports.
var OSUCellArea = map[string]float64{
	"AND2X1": 32, "AND2X2": 32, "AOI21X1": 32, "AOI22X2": 40,
	"BUFX2": 24, "BUFX4": 32, "CLKBUF1": 72, "CLKBUF2": 104, "CLKBUF3": 136,
	"FAX1": 120, "HAX1": 80,
	"INVX1": 16, "INVX2": 16, "INVX4": 24, "INVX8": 40,
	"LATCH": 16, "MUX2X1": 48,
	"NAND2X1": 24, "NAND3X1": 36, "NOR2X1": 24, "NOR3X1": 64,
	"OAI21X1": 24, "OAI22X1": 40, "OR2X1": 32, "OR2X2": 32,
	"TBUFX1": 40, "TBUFX2": 56, "XNOR2X1": 56, "XOR2X1": 56,
}

// Matcher extracts a value from one log line.
type Matcher func(line string) (float64, bool)

// ParseMaxFloat returns the largest value match extracts from the lines of
// path, or failure when the file does not exist or nothing matches.
func ParseMaxFloat(path string, match Matcher, failure float64) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return failure, nil
		}
		return failure, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	result := failure
	first := true
	err = scanLines(f, func(line string) {
		v, ok := match(line)
		if !ok {
			return
		}
		if first || v > result {
			result = v
			first = false
		}
	})
	if err != nil {
		return failure, errors.Wrapf(err, "read %s", path)
	}
	return result, nil
}

// ParseABCLog reads the delay from "Delay = x ps" and sums the area of
// every print_gates line of an abc session log. A missing log yields a
// delay of -1.
func ParseABCLog(path string) (delay, area float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, 0, nil
		}
		return -1, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	delay = -1
	err = scanLines(f, func(line string) {
		if i := strings.Index(line, "Delay ="); i >= 0 {
			if v, ok := floatAfter(line[i:], "Delay ="); ok {
				delay = v * picoseconds
			}
			return
		}
		if strings.Contains(line, "Fanin =") {
			if v, ok := gateArea(line); ok {
				area += v * squareMicro
			}
		}
	})
	if err != nil {
		return -1, 0, errors.Wrapf(err, "read %s", path)
	}
	return delay, area, nil
}

// gateArea parses "<cell> Fanin = <n> Instance = <n> Area = <area> ...".
func gateArea(line string) (float64, bool) {
	f := strings.Fields(line)
	if len(f) < 10 || f[1] != "Fanin" || f[2] != "=" || f[4] != "Instance" || f[5] != "=" || f[7] != "Area" || f[8] != "=" {
		return 0, false
	}
	if _, err := strconv.Atoi(f[3]); err != nil {
		return 0, false
	}
	if _, err := strconv.Atoi(f[6]); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(f[9], 64)
	return v, err == nil
}

// ParseYosysLog reads the abc delay line and the "ABC RESULTS: <cell>
// cells: <n>" lines of a yosys log; the area is the cell counts weighted
// with OSUCellArea. A missing log yields a delay of -1.
func ParseYosysLog(path string) (delay, area float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, 0, nil
		}
		return -1, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	delay = -1
	var cells float64
	err = scanLines(f, func(line string) {
		switch {
		case strings.HasPrefix(line, "ABC RESULTS:"):
			fields := strings.Fields(strings.TrimPrefix(line, "ABC RESULTS:"))
			if len(fields) < 3 || fields[1] != "cells:" {
				return
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count <= 0 {
				return
			}
			cells += OSUCellArea[fields[0]] * float64(count)
		case strings.HasPrefix(line, "ABC:"):
			if i := strings.Index(line, "Delay ="); i >= 0 {
				if v, ok := floatAfter(line[i:], "Delay ="); ok {
					delay = v * picoseconds
				}
			}
		}
	})
	if err != nil {
		return -1, 0, errors.Wrapf(err, "read %s", path)
	}
	return delay, cells * squareMicro, nil
}

// ParseGenusLogs collects the metrics genus writes into the report files
// <base>.{power_typ,power_max,area,timing_min,timing_typ,timing_max}.log.
// Reports that are missing contribute zero.
func ParseGenusLogs(base string) (Result, error) {
	var r Result
	for _, corner := range []struct {
		file                   string
		static, dynamic, total Kind
	}{
		{".power_typ.log", PowerTypStatic, PowerTypDynamic, PowerTyp},
		{".power_max.log", PowerMaxStatic, PowerMaxDynamic, PowerMax},
	} {
		static, dynamic, total, err := parsePower(base + corner.file)
		if err != nil {
			return r, err
		}
		r.Set(corner.static, static)
		r.Set(corner.dynamic, dynamic)
		r.Set(corner.total, total)
	}

	area, err := ParseMaxFloat(base+".area.log", column(4), 0)
	if err != nil {
		return r, err
	}
	r.Area = area * squareMicro

	for _, timing := range []struct {
		file string
		kind Kind
	}{
		{".timing_min.log", DelayMin},
		{".timing_max.log", DelayMax},
		{".timing_typ.log", DelayTyp},
	} {
		v, err := ParseMaxFloat(base+timing.file, dataPath, 0)
		if err != nil {
			return r, err
		}
		r.Set(timing.kind, v*picoseconds)
	}
	return r, nil
}

// parsePower reads the " Subtotal <a> <b> <c> <d>" lines of a power report,
// falling back to the older "<name> <a> <b> <c> <d>" format in nanowatts when
// no subtotal is found.
func parsePower(path string) (static, dynamic, total float64, err error) {
	if total, err = ParseMaxFloat(path, subtotal(4), 0); err != nil {
		return
	}
	if total != 0 {
		if static, err = ParseMaxFloat(path, subtotal(1), 0); err != nil {
			return
		}
		dynamic, err = ParseMaxFloat(path, subtotal(3), 0)
		return
	}
	if total, err = ParseMaxFloat(path, column(4), 0); err != nil {
		return
	}
	if static, err = ParseMaxFloat(path, column(2), 0); err != nil {
		return
	}
	if dynamic, err = ParseMaxFloat(path, column(3), 0); err != nil {
		return
	}
	return static * nanowatts, dynamic * nanowatts, total * nanowatts, nil
}

// column matches lines "<word> <f1> <f2> ..." and returns field n, provided
// fields 1..n are all numbers.
func column(n int) Matcher {
	return func(line string) (float64, bool) {
		f := strings.Fields(line)
		if len(f) <= n {
			return 0, false
		}
		var v float64
		for i := 1; i <= n; i++ {
			x, err := strconv.ParseFloat(f[i], 64)
			if err != nil {
				return 0, false
			}
			v = x
		}
		return v, true
	}
}

func subtotal(n int) Matcher {
	col := column(n)
	return func(line string) (float64, bool) {
		f := strings.Fields(line)
		if len(f) == 0 || f[0] != "Subtotal" {
			return 0, false
		}
		return col(line)
	}
}

func dataPath(line string) (float64, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "Data Path:-") {
		return 0, false
	}
	return floatAfter(trimmed, "Data Path:-")
}

// floatAfter parses the number that follows prefix at the start of s.
func floatAfter(s, prefix string) (float64, bool) {
	fields := strings.Fields(strings.TrimPrefix(s, prefix))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	return v, err == nil
}

func scanLines(f *os.File, fn func(line string)) error {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}
