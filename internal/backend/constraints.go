package backend

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"exprsynth/internal/config"
)

// Constraints are the timing constraints handed to the mapper.
type Constraints struct {
	// Load is the output load capacitance.
	Load float64
	// DrivingCell drives every input when set.
	DrivingCell string
}

// constraintsFrom reads the constraint options.
func constraintsFrom(cfg *config.Store) (Constraints, error) {
	load, err := cfg.Real(config.DefaultLoad)
	if err != nil {
		return Constraints{}, err
	}
	c := Constraints{Load: load}
	if cell, ok := cfg.Path(config.DrivingCell); ok {
		c.DrivingCell = cell
	}
	return c, nil
}

// Write stores the constraints as an .sdc file next to input and returns
// its path.
func (c Constraints) Write(input string) (string, error) {
	path, err := constraintsPath(input)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "set_load %s\n", strconv.FormatFloat(c.Load, 'g', -1, 64))
	if c.DrivingCell != "" {
		fmt.Fprintf(&sb, "set_driving_cell %s\n", c.DrivingCell)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", errors.Wrap(err, "backend: write constraints")
	}
	return path, nil
}
