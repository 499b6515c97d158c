// vnetctl - inspect and drive vnetorchd on a SONiC switch
//
// Reads route state, ASIC programming and the transition history, and
// writes route intents and the TSA flag. Redis is reached directly or
// through an SSH tunnel when the switch binds it to loopback.
//
// Examples:
//
//	vnetctl show routes --vnet Vnet_2000
//	vnetctl show route Vnet_2000 100.100.1.1/32
//	vnetctl --ssh-host leaf1 --ssh-user admin show groups
//	vnetctl route set Vnet_2000 100.100.1.1/32 --endpoint 9.0.0.1,9.0.0.2 --monitor 9.1.0.1,9.1.0.2
//	vnetctl tsa enable
//	vnetctl history --vnet Vnet_2000 --limit 20
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/vnetorch/pkg/settings"
	"github.com/newtron-network/vnetorch/pkg/sonic"
	"github.com/newtron-network/vnetorch/pkg/util"
	"github.com/newtron-network/vnetorch/pkg/version"
)

var (
	redisAddr  string
	configPath string
	verbose    bool
	jsonOutput bool

	sshHost       string
	sshPort       int
	sshUser       string
	sshPass       string
	sshKnownHosts string

	userSettings *settings.Settings
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "vnetctl",
	Short:             "Inspect and drive the VNET route orchestrator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		var err error
		if configPath != "" {
			userSettings, err = settings.LoadFrom(configPath)
		} else {
			userSettings, err = settings.Load()
		}
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = settings.Default()
		}
		if redisAddr == "" {
			redisAddr = userSettings.RedisAddr
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Redis address (default from settings)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.PersistentFlags().StringVar(&sshHost, "ssh-host", "", "Reach Redis through SSH to this switch")
	rootCmd.PersistentFlags().IntVar(&sshPort, "ssh-port", 22, "SSH port")
	rootCmd.PersistentFlags().StringVar(&sshUser, "ssh-user", "admin", "SSH user")
	rootCmd.PersistentFlags().StringVar(&sshPass, "ssh-pass", "", "SSH password (prompted when empty)")
	rootCmd.PersistentFlags().StringVar(&sshKnownHosts, "known-hosts", "", "known_hosts file for host key checks")

	rootCmd.AddGroup(
		&cobra.Group{ID: "query", Title: "Inspection:"},
		&cobra.Group{ID: "mutate", Title: "Intent Management:"},
		&cobra.Group{ID: "meta", Title: "Meta:"},
	)
	for _, cmd := range []*cobra.Command{showCmd, statusCmd, historyCmd} {
		cmd.GroupID = "query"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{routeCmd, tsaCmd} {
		cmd.GroupID = "mutate"
		rootCmd.AddCommand(cmd)
	}
	versionCmd.GroupID = "meta"
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("vnetctl"))
	},
}

// connect opens the switch databases. withAsic also discovers the switch
// object in ASIC_DB, which fails on a switch that was never initialised.
func connect(withAsic bool) (*sonic.Conn, error) {
	opts := sonic.Options{
		Addr: redisAddr,
		DBs: sonic.DBNumbers{
			App:    userSettings.Databases.App,
			Asic:   userSettings.Databases.Asic,
			Config: userSettings.Databases.Config,
			State:  userSettings.Databases.State,
		},
		SkipAsic: !withAsic,
	}
	if sshHost != "" {
		pass, err := sshPassword()
		if err != nil {
			return nil, err
		}
		opts.SSH = &sonic.SSHConfig{
			Host:       sshHost,
			Port:       sshPort,
			User:       sshUser,
			Password:   pass,
			KnownHosts: sshKnownHosts,
			RemoteAddr: redisAddr,
		}
	}
	return sonic.Open(opts)
}

func sshPassword() (string, error) {
	if sshPass != "" {
		return sshPass, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ssh-pass required when stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s@%s's password: ", sshUser, sshHost)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
