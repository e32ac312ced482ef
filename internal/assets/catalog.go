// ABOUTME: Asset catalog of immutable descriptors loaded from YAML
// ABOUTME: The default catalog is embedded in the binary
package assets

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Kind is the channel an asset plays on
type Kind string

const (
	KindSFX     Kind = "sfx"
	KindMusic   Kind = "music"
	KindVoice   Kind = "voice"
	KindAmbient Kind = "ambient"
)

// ErrUnknownAsset is returned for ids missing from the catalog
var ErrUnknownAsset = errors.New("unknown asset")

// Asset describes one playable file
type Asset struct {
	ID             string   `yaml:"id" json:"id"`
	URL            string   `yaml:"url" json:"url"`
	Kind           Kind     `yaml:"type" json:"type"`
	Category       string   `yaml:"category" json:"category"`
	PolishCategory string   `yaml:"polish_category" json:"polish_category"`
	Tags           []string `yaml:"tags" json:"tags,omitempty"`
	PolishTags     []string `yaml:"polish_tags" json:"polish_tags,omitempty"`
	// Seconds, as declared by the catalog. The decoded buffer is authoritative.
	DurationSeconds float64 `yaml:"duration" json:"duration"`
	// SampleRate and Channels describe headerless pcm assets
	SampleRate int `yaml:"sample_rate" json:"sample_rate,omitempty"`
	Channels   int `yaml:"channels" json:"channels,omitempty"`
	// Critical assets are preloaded when the profile allows it
	Critical bool `yaml:"critical" json:"critical"`
	// Bitrate of URL in bits per second; LowURL is an optional cheaper encoding
	Bitrate int    `yaml:"bitrate" json:"bitrate,omitempty"`
	LowURL  string `yaml:"low_url" json:"low_url,omitempty"`
}

// URLFor picks the encoding to fetch under a bitrate cap. Zero means no cap.
func (a Asset) URLFor(maxBitrate int) string {
	if maxBitrate > 0 && a.Bitrate > maxBitrate && a.LowURL != "" {
		return a.LowURL
	}
	return a.URL
}

// Duration converts the declared duration
func (a Asset) Duration() time.Duration {
	return time.Duration(a.DurationSeconds * float64(time.Second))
}

// Catalog is a read-only id -> Asset index preserving file order
type Catalog struct {
	assets map[string]Asset
	order  []string
}

type catalogFile struct {
	Assets []Asset `yaml:"assets"`
}

// ParseCatalog decodes a YAML catalog
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{assets: make(map[string]Asset, len(file.Assets))}
	for i, a := range file.Assets {
		if a.ID == "" || a.URL == "" {
			return nil, fmt.Errorf("catalog entry %d: id and url are required", i)
		}
		switch a.Kind {
		case KindSFX, KindMusic, KindVoice, KindAmbient:
		default:
			return nil, fmt.Errorf("asset %s: invalid type %q", a.ID, a.Kind)
		}
		if _, dup := c.assets[a.ID]; dup {
			return nil, fmt.Errorf("asset %s: duplicate id", a.ID)
		}
		c.assets[a.ID] = a
		c.order = append(c.order, a.ID)
	}
	return c, nil
}

// LoadCatalog reads a catalog file. An empty path returns DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCatalog(f)
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Get looks up an asset
func (c *Catalog) Get(id string) (Asset, error) {
	a, ok := c.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a, nil
}

// All returns every asset in catalog order
func (c *Catalog) All() []Asset {
	out := make([]Asset, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.assets[id])
	}
	return out
}

// ByKind filters All by kind
func (c *Catalog) ByKind(k Kind) []Asset {
	return lo.Filter(c.All(), func(a Asset, _ int) bool { return a.Kind == k })
}

// Critical returns the assets flagged for preloading
func (c *Catalog) Critical() []Asset {
	return lo.Filter(c.All(), func(a Asset, _ int) bool { return a.Critical })
}

// Len is the number of assets
func (c *Catalog) Len() int {
	return len(c.order)
}
