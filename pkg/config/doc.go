/*
Package config loads the control plane's Config from a YAML file via
gopkg.in/yaml.v3, layered over Default() and under environment variable
overrides (ZOE_<FIELD_NAME>). Precedence, lowest to highest: built-in
default, YAML file, environment.
*/
package config
