// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It produces plain
// structs; conversion into the resolved objects each component needs happens
// at the application edge so components stay independent of viper.
package config
