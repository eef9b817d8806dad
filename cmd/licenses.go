package cmd

// usedLicenses lists the third party modules linked into the binary.
var usedLicenses = []struct {
	module  string
	license string
}{
	{module: "github.com/cespare/xxhash/v2", license: "MIT"},
	{module: "github.com/fxamacker/cbor/v2", license: "MIT"},
	{module: "github.com/google/gopacket", license: "BSD-3-Clause"},
	{module: "github.com/sirupsen/logrus", license: "MIT"},
	{module: "github.com/spf13/cobra", license: "Apache-2.0"},
	{module: "github.com/spf13/pflag", license: "BSD-3-Clause"},
	{module: "github.com/spf13/viper", license: "MIT"},
	{module: "golang.org/x/sync", license: "BSD-3-Clause"},
	{module: "golang.org/x/term", license: "BSD-3-Clause"},
	{module: "gopkg.in/natefinch/lumberjack.v2", license: "MIT"},
	{module: "gopkg.in/yaml.v3", license: "MIT, Apache-2.0"},
}
