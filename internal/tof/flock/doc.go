// Package flock scans several multi-zone ranging sensors that share one
// open-drain interrupt line and delivers their decoded results one at a
// time.
//
// The interrupt line only says "something happened": it cannot tell which
// sensor pulled it low, and a second sensor may assert while the first still
// holds the line. Every edge therefore triggers a full rescan of all sensors,
// and both edge directions are treated as a wake-up.
//
// A Flock is driven by a single goroutine. It owns the sensors and the line
// from Start until Stop hands them back.
package flock
