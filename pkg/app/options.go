package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options struct of every command.
// Flags are grouped into named sections in --help.
type NamedFlagSetOptions interface {
	// Flags returns the command's flags, grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields derived from other fields.
	Complete() error

	// Validate checks the options after Complete.
	Validate() error
}
