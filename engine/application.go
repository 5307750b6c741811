package engine

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-samples/engine/core"
)

/**
 * @brief ApplicationConfig describes the window, the environment and the
 * output of an application. It can be read from a TOML file; the zero value
 * of a field left out of the file keeps its default.
 */
type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, and the size of headless frames.
	Width uint32 `toml:"width"`
	// Window starting height, and the size of headless frames.
	Height uint32 `toml:"height"`
	// The application name used in windowing, if applicable.
	Title string `toml:"title"`
	// Directory holding the sh.txt of an environment, empty for none.
	IBLDirectory string `toml:"ibl_directory"`
	// Show four views of the scene instead of one.
	SplitView bool `toml:"split_view"`
	// Uniform scale applied by the application to its content.
	Scale float32 `toml:"scale"`
	LogLevel string `toml:"log_level"`

	// Render Frames frames without a window and write the last one to Snapshot.
	Headless bool   `toml:"headless"`
	Frames   uint32 `toml:"frames"`
	Snapshot string `toml:"snapshot"`

	// Reload assets registered with Watch when they change on disk.
	Watch bool `toml:"watch"`
	VSync bool `toml:"vsync"`
	// Enable the Vulkan validation layers.
	Debug bool `toml:"debug"`
}

func DefaultApplicationConfig() ApplicationConfig {
	return ApplicationConfig{
		StartPosX: 100,
		StartPosY: 100,
		Width:     1024,
		Height:    640,
		Title:     "anima",
		Scale:     1.0,
		LogLevel:  core.LogLevelInfo.String(),
		Frames:    1,
		VSync:     true,
	}
}

// LoadApplicationConfig decodes the TOML file at path over cfg. Keys absent
// from the file leave cfg untouched; unknown keys are an error.
func LoadApplicationConfig(path string, cfg *ApplicationConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Validate fixes values the application cannot work with and reports the
// ones it cannot fix.
func (c *ApplicationConfig) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Width, c.Height)
	}
	if c.Frames == 0 {
		c.Frames = 1
	}
	if c.Scale <= 0 {
		core.LogWarn("invalid scale %f, using 1", c.Scale)
		c.Scale = 1
	}
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
