package models

// Hotel is the static room inventory for one property, loaded from config.
type Hotel struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Rooms []string `json:"rooms" yaml:"rooms"`
}
