package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/logger"
)

const ErrBadDirective = errors.ErrorCode("config_bad_directive")

// CurveFile is the parsed form of a fan curve file: whitespace-delimited
// temperature/speed pairs, one per line, lines starting with # ignored,
// plus an optional "fanflicker = [min, max]" directive.
type CurveFile struct {
	Points  []curve.Point
	Flicker *FlickerBounds
}

// FlickerBounds carries the fanflicker directive's zone.
type FlickerBounds struct {
	Min int
	Max int
}

// DefaultPoints is the curve used when no curve file is configured.
func DefaultPoints() []curve.Point {
	return []curve.Point{
		{Temperature: 41, Speed: 20},
		{Temperature: 49, Speed: 30},
		{Temperature: 57, Speed: 45},
		{Temperature: 66, Speed: 55},
		{Temperature: 75, Speed: 63},
		{Temperature: 78, Speed: 72},
		{Temperature: 80, Speed: 80},
	}
}

// LoadCurveFile reads and parses the curve file at path.
func LoadCurveFile(path string) (*CurveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrReadConfig, err)
	}
	defer f.Close()

	return ParseCurve(f)
}

// ParseCurve parses curve-file content. Malformed pair lines are skipped
// with a debug log; a malformed fanflicker directive is a configuration
// error. Point count and monotonicity are validated later by curve.New.
func ParseCurve(r io.Reader) (*CurveFile, error) {
	out := &CurveFile{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "fanflicker") {
			bounds, err := parseFlickerDirective(line)
			if err != nil {
				return nil, err
			}
			out.Flicker = bounds

			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			logger.Debug().Msgf("Invalid curve line %q, ignoring", line)
			continue
		}

		temperature, err := strconv.Atoi(parts[0])
		if err != nil {
			logger.Debug().Msgf("Could not parse temperature %q, ignoring line", parts[0])
			continue
		}

		speed, err := strconv.Atoi(parts[1])
		if err != nil {
			logger.Debug().Msgf("Could not parse speed %q, ignoring line", parts[1])
			continue
		}

		out.Points = append(out.Points, curve.Point{Temperature: temperature, Speed: speed})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return out, nil
}

// parseFlickerDirective parses "fanflicker = [min, max]".
func parseFlickerDirective(line string) (*FlickerBounds, error) {
	errFactory := errors.New()

	_, value, found := strings.Cut(line, "=")
	if !found {
		return nil, errFactory.WithData(ErrBadDirective, line)
	}

	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return nil, errFactory.WithData(ErrBadDirective, line)
	}

	fields := strings.Split(value[1:len(value)-1], ",")
	if len(fields) != 2 {
		return nil, errFactory.WithData(ErrBadDirective, line)
	}

	minBound, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, errFactory.Wrap(ErrBadDirective, err)
	}

	maxBound, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, errFactory.Wrap(ErrBadDirective, err)
	}

	return &FlickerBounds{Min: minBound, Max: maxBound}, nil
}
