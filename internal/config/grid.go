package config

import (
    "errors"
    "fmt"
    "io/fs"
    "os"

    "gopkg.in/yaml.v3"

    "github.com/iliyamo/table-reservation/internal/grid"
    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/reservation"
)

// GridSettings describes the event: its map shape, display prices, the
// credit rules and layout hints for the client.  It is read once at
// startup and served read-only at GET /v1/config.
type GridSettings struct {
    EventName    string          `yaml:"event_name" json:"eventName"`
    Rows         int             `yaml:"rows" json:"mapRows"`
    Cols         int             `yaml:"cols" json:"mapCols"`
    PriceS       float64         `yaml:"price_s" json:"priceS"`
    PriceD       float64         `yaml:"price_d" json:"priceD"`
    Placeholders []grid.Position `yaml:"placeholders" json:"placeholders"`
    Credits      CreditSettings  `yaml:"credits" json:"credits"`
    UI           UISettings      `yaml:"ui" json:"ui"`
}

// CreditSettings are the standard-credit weights of each seat type.
type CreditSettings struct {
    CostS        int64 `yaml:"cost_s" json:"costS"`
    CostD        int64 `yaml:"cost_d" json:"costD"`
    SpecialGain  int64 `yaml:"special_gain" json:"specialGain"`
    DoubleToggle bool  `yaml:"double_toggle" json:"doubleToggle"`
}

// UISettings are passed through to the client untouched.
type UISettings struct {
    BaseWidth      int     `yaml:"base_width" json:"baseWidth"`
    BaseHeight     int     `yaml:"base_height" json:"baseHeight"`
    ScaleIncrement float64 `yaml:"scale_increment" json:"scaleIncrement"`
    SVGScale       float64 `yaml:"svg_scale" json:"svgScale"`
    MaxOffsetX     int     `yaml:"max_offset_x" json:"maxOffsetX"`
    MaxOffsetY     int     `yaml:"max_offset_y" json:"maxOffsetY"`
}

// DefaultGridSettings is a 20x9 map with the six stage positions in the
// first two rows left empty.
func DefaultGridSettings() GridSettings {
    return GridSettings{
        EventName: "Evento A",
        Rows:      20,
        Cols:      9,
        PriceS:    50,
        PriceD:    100,
        Placeholders: []grid.Position{
            {Row: 0, Col: 3}, {Row: 0, Col: 4}, {Row: 0, Col: 5},
            {Row: 1, Col: 3}, {Row: 1, Col: 4}, {Row: 1, Col: 5},
        },
        Credits: CreditSettings{CostS: 1, CostD: 2, SpecialGain: 1},
        UI: UISettings{
            BaseWidth: 55, BaseHeight: 60, ScaleIncrement: 0.03,
            SVGScale: 0.9, MaxOffsetX: 10, MaxOffsetY: 10,
        },
    }
}

// LoadGrid reads YAML settings from path over the defaults.  An empty
// path or a missing file yields the defaults.
func LoadGrid(path string) (GridSettings, error) {
    g := DefaultGridSettings()
    if path == "" {
        return g, nil
    }
    b, err := os.ReadFile(path)
    if errors.Is(err, fs.ErrNotExist) {
        return g, nil
    }
    if err != nil {
        return GridSettings{}, err
    }
    if err := yaml.Unmarshal(b, &g); err != nil {
        return GridSettings{}, fmt.Errorf("grid settings %s: %w", path, err)
    }
    if err := g.Validate(); err != nil {
        return GridSettings{}, err
    }
    return g, nil
}

// Validate checks the layout and that no credit weight is negative.
func (g GridSettings) Validate() error {
    if err := g.Layout().Validate(); err != nil {
        return err
    }
    c := g.Credits
    if c.CostS < 0 || c.CostD < 0 || c.SpecialGain < 0 {
        return errors.New("grid settings: credit weights must be >= 0")
    }
    return nil
}

func (g GridSettings) Layout() grid.Layout {
    return grid.Layout{Rows: g.Rows, Cols: g.Cols, Placeholders: g.Placeholders}
}

// Policy derives the reservation rules.  Seat weights set the purchase
// price; the refund for a released hold always matches what the clicks
// spent building it (one per single, two per double).
func (g GridSettings) Policy() reservation.Policy {
    p := reservation.DefaultPolicy()
    p.Price = map[model.SeatType]int64{model.SeatSingle: g.Credits.CostS, model.SeatDouble: g.Credits.CostD}
    p.SpecialGain = g.Credits.SpecialGain
    p.DoubleToggle = g.Credits.DoubleToggle
    return p
}
