// Package main provides the entry point for the hexwatch daemon.
//
// hexwatchd watches the public auction feed for dyed armor, ranks each
// piece's color against a reference catalog and alerts subscribers when a
// close match shows up.
//
// Usage:
//
//	hexwatchd serve --config config.yaml
//	hexwatchd compare F2DF11 #F7DA33
//	hexwatchd closest F2DF11 CHESTPLATE --metric cie76
//
// See --help for all available options.
package main

func main() {
	Execute()
}
