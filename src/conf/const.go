// Package conf contains the constants that are used across packages for configuring
// versions and stack sizes.
package conf

import (
	"fmt"
	"math"
	"time"
)

const (
	// SOLSIGNATURE is an artifact to put at the beginning of a dumped fnproto so that we can detect binary data.
	SOLSIGNATURE = "\x1bSol"
	// SOLVERSION is the version of the sol application.
	SOLVERSION = "Sol 0.1.0"
	// SOLVERSIONMAJORN is the major version.
	SOLVERSIONMAJORN = 0
	// SOLVERSIONMINORN is the minor version.
	SOLVERSIONMINORN = 1
	// SOLVERSIONPATCHN is the patch version.
	SOLVERSIONPATCHN = 0
	// SOLFORMAT dump/undump format incase it ever changes.
	SOLFORMAT = 0
	// INITIALSTACKSIZE  stack size at vm startup.
	INITIALSTACKSIZE = 128
	// MAXSTACKSIZE  max stack size.
	MAXSTACKSIZE = math.MaxInt64
	// MAXUPVALUES max allowed upvals referred in a fn scope.
	MAXUPVALUES = 255
	// MAXLOCALS max allowed vars defined in a fn scope.
	MAXLOCALS = 200
	// MAXCONST max amount of consts that a fnproto can store.
	MAXCONST = 64_536
	// MAXINLINECONST max index that we can index constants with iABC.
	MAXINLINECONST = 255
	// MAXRESULTS max amount of return values.
	MAXRESULTS = 250
	// GCPAUSE minimum number of objects before calling collection.
	GCPAUSE = 200
	// MAXIWTHABS is the maximum number of instructions allowed between two
	// absolute line-info anchors in a compressed line table.
	MAXIWTHABS = 128
)

// FullVersion returns the version and copyright.
func FullVersion() string {
	return fmt.Sprintf("%v Copyright (C) %v", SOLVERSION, time.Now().Year())
}

// Copyright is the copyright to be written out in the CLI.
func Copyright() string {
	return fmt.Sprintf("Copyright (C) %v", time.Now().Year())
}
