package compliance

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// QuerySet is a list of canned queries and how many hits to take per query.
type QuerySet struct {
	TopK    int      `yaml:"top_k"`
	Queries []string `yaml:"queries"`
}

type PatternSet struct {
	TopK     int      `yaml:"top_k"`
	Patterns []string `yaml:"patterns"`
}

// Catalog holds every canned query the aggregation procedures run.
type Catalog struct {
	Critical    QuerySet   `yaml:"critical"`
	Trends      PatternSet `yaml:"trends"`
	TrendReport struct {
		Query         string `yaml:"query"`
		TopK          int    `yaml:"top_k"`
		RecentReports int    `yaml:"recent_reports"`
		ExcerptChars  int    `yaml:"excerpt_chars"`
	} `yaml:"trend_report"`
	Retraining struct {
		Query string `yaml:"query"`
		TopK  int    `yaml:"top_k"`
	} `yaml:"retraining"`
	Alerts struct {
		Limit int `yaml:"limit"`
	} `yaml:"alerts"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	c, err := parseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. Sections missing from the file keep the built-in values.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(b)
}

func parseCatalog(b []byte) (Catalog, error) {
	var c Catalog
	if len(defaultCatalog) > 0 {
		if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
			return Catalog{}, fmt.Errorf("decode default catalog: %w", err)
		}
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return c, c.Validate()
}

func (c Catalog) Validate() error {
	var errs []error
	if len(c.Critical.Queries) == 0 {
		errs = append(errs, errors.New("critical.queries must not be empty"))
	}
	if len(c.Trends.Patterns) == 0 {
		errs = append(errs, errors.New("trends.patterns must not be empty"))
	}
	if c.Critical.TopK <= 0 || c.Trends.TopK <= 0 || c.TrendReport.TopK <= 0 || c.Retraining.TopK <= 0 {
		errs = append(errs, errors.New("top_k values must be positive"))
	}
	if c.TrendReport.Query == "" || c.Retraining.Query == "" {
		errs = append(errs, errors.New("trend_report.query and retraining.query are required"))
	}
	if c.Alerts.Limit < 0 || c.TrendReport.RecentReports < 0 || c.TrendReport.ExcerptChars < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	return errors.Join(errs...)
}
