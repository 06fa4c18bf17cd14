// Package config provides configuration loading and validation for the
// payload audio relay. Configuration is YAML; any field left out of the file
// keeps the value from Default.
package config
