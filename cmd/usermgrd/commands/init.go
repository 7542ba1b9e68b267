package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leibniz-psychology/usermgrd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample usermgrd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/usermgrd/config.yaml. Use --config to specify a
custom path.

Examples:
  # Initialize with default location
  usermgrd init

  # Initialize with custom path
  usermgrd init --config /etc/usermgrd/config.yaml

  # Force overwrite existing config
  usermgrd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created: %s\n", configPath)
	fmt.Println("Edit it to match your directory, KDC and socket layout, then run:")
	fmt.Printf("  usermgrd start --config %s\n", configPath)
	return nil
}
