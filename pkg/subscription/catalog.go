package subscription

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the YAML document listing the plans a deployment offers.
//
//	plans:
//	  - name: Monthly
//	    amount: 1000
//	    currency: MXN
//	    interval: month
//	    trial_period_days: 7
type Catalog struct {
	Plans []PlanDefinition `yaml:"plans"`
}

// LoadCatalog decodes a plan catalog. Unknown keys and plans without a
// positive amount are rejected with ErrInvalidCatalog.
func LoadCatalog(r io.Reader) ([]PlanDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	for i, def := range c.Plans {
		if def.Amount <= 0 {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %d (%q): amount must be positive", i, def.Name))
		}
	}
	return c.Plans, nil
}

// LoadCatalogFile reads a YAML plan catalog from path.
func LoadCatalogFile(path string) ([]PlanDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
