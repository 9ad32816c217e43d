package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlag binds a flag onto a viper key so flag > env > file > default.
// A missing flag is a programming error.
func bindFlag(key string, flags *pflag.FlagSet, name string) {
	f := flags.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("cmd: no flag %q to bind to %s", name, key))
	}
	if err := viper.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("cmd: binding %s: %v", key, err))
	}
}
