package types

import "strings"

// AddressInput is the delivery address typed into the manual address form.
// It is read-only for the whole run.
type AddressInput struct {
	Country       string `yaml:"country" json:"country"`
	StreetAddress string `yaml:"street_address" json:"street_address"`
	City          string `yaml:"city" json:"city"`
	Province      string `yaml:"province" json:"province"`
	PostalCode    string `yaml:"postal_code" json:"postal_code"`
}

// Missing returns the names of empty address fields, in form order.
func (a AddressInput) Missing() []string {
	var missing []string
	fields := []struct {
		name  string
		value string
	}{
		{"country", a.Country},
		{"street_address", a.StreetAddress},
		{"city", a.City},
		{"province", a.Province},
		{"postal_code", a.PostalCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
