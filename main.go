package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mil-ad/glockctl/melody"
)

var (
	cfgFile string
	cfg     *Config
	bpm     int
)

var rootCmd = &cobra.Command{
	Use:           "glockctl",
	Short:         "Play melodies on a Bluetooth glockenspiel",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return err
		}
		initLogger(cfg.Log.Level)
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Own the device session and serve requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("http"); addr != "" {
			cfg.HTTP.Listen = addr
		}
		return runDaemon(cfg)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIPC(IPCRequest{Command: "status"})
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List bonded devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIPC(IPCRequest{Command: "devices"})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect [device-name]",
	Short: "Connect to a bonded glockenspiel",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		name, err := resolveDevice(cfg, name)
		if err != nil {
			return err
		}
		return runIPC(IPCRequest{Command: "connect", Device: name})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <melody>",
	Short: `Upload a melody, e.g. "C+E,R,G"`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIPC(IPCRequest{Command: "send", Melody: args[0], Tempo: bpm})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIPC(IPCRequest{Command: "stop"})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Close the connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIPC(IPCRequest{Command: "disconnect"})
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode <melody>",
	Short: "Print the device command for a melody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		tempo := bpm
		if tempo == 0 {
			tempo = cfg.Tempo
		}
		c, err := melody.Encoder{Strict: strict || cfg.StrictNotes}.Encode(args[0], tempo)
		if err != nil {
			return err
		}
		fmt.Println(c)
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:       "demo <1|2|3>",
	Short:     "Play one of the built-in demo songs",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"1", "2", "3"},
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(demoSongs) {
			return fmt.Errorf("demo must be 1-%d, got %q", len(demoSongs), args[0])
		}
		song := demoSongs[n-1]
		tempo := song.Tempo
		if bpm != 0 {
			tempo = bpm
		}
		return runIPC(IPCRequest{Command: "send", Melody: song.Melody, Tempo: tempo})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.mid>",
	Short: "Convert a MIDI file to melody text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		tempo := bpm
		if tempo == 0 {
			tempo = cfg.Tempo
		}
		m, err := importMIDI(f, tempo)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}
		if send, _ := cmd.Flags().GetBool("send"); send {
			return runIPC(IPCRequest{Command: "send", Melody: m.String(), Tempo: tempo})
		}
		return json.NewEncoder(os.Stdout).Encode(struct {
			Melody string `json:"melody"`
			Tempo  int    `json:"tempo"`
		}{m.String(), tempo})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", configPath(), "config file")
	daemonCmd.Flags().String("http", "", "serve the HTTP API on this address, e.g. 127.0.0.1:8080")
	encodeCmd.Flags().Bool("strict", false, "reject unknown notes instead of skipping them")
	importCmd.Flags().Bool("send", false, "upload the imported melody through the daemon")
	for _, c := range []*cobra.Command{sendCmd, encodeCmd, demoCmd, importCmd} {
		c.Flags().IntVar(&bpm, "bpm", 0, "tempo in beats per minute (default from config)")
	}
	rootCmd.AddCommand(daemonCmd, statusCmd, devicesCmd, connectCmd, sendCmd, stopCmd,
		disconnectCmd, encodeCmd, demoCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
