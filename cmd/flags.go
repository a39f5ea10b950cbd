package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// flagValue unwraps a pflag getter result. Flags are registered in init(),
// so a lookup error is a programming bug and panics.
func flagValue[T any](name string) func(T, error) T {
	return func(val T, err error) T {
		if err != nil {
			panic(fmt.Sprintf("flag error for --%s: %v", name, err))
		}
		return val
	}
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return flagValue[bool](name)(cmd.Flags().GetBool(name))
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return flagValue[int](name)(cmd.Flags().GetInt(name))
}

func mustGetString(cmd *cobra.Command, name string) string {
	return flagValue[string](name)(cmd.Flags().GetString(name))
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return flagValue[float64](name)(cmd.Flags().GetFloat64(name))
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return flagValue[[]string](name)(cmd.Flags().GetStringSlice(name))
}
