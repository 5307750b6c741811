package loaders

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// SHFileName is the spherical harmonics file cmgen writes into an IBL directory.
const SHFileName = "sh.txt"

// IBLLoader reads the irradiance spherical harmonics of an IBL directory.
// Each line of sh.txt holds one coefficient, `( r, g, b ); // Lxx`.
type IBLLoader struct{}

func (l *IBLLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	file := path
	if info, err := os.Stat(path); err != nil {
		return nil, err
	} else if info.IsDir() {
		file = filepath.Join(path, SHFileName)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sh []math.Vec3
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		open := strings.IndexByte(text, '(')
		end := strings.IndexByte(text, ')')
		if open < 0 || end < open {
			continue
		}
		c, err := parseFloats(strings.FieldsFunc(text[open+1:end], func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}), 3)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", file, line, err)
		}
		sh = append(sh, math.NewVec3(c[0], c[1], c[2]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var bands int
	switch {
	case len(sh) >= 9:
		bands = 3
	case len(sh) >= 4:
		bands = 2
	case len(sh) >= 1:
		bands = 1
	default:
		return nil, fmt.Errorf("%w: %s holds no spherical harmonics", core.ErrUnsupportedFormat, file)
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeIBL,
		Name:     filepath.Base(path),
		FullPath: file,
		DataSize: uint64(len(sh) * 12),
		Data:     &resources.IBLResourceData{Bands: bands, SH: sh[:bands*bands]},
	}, nil
}

func (l *IBLLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	return nil
}
