package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "faceattend",
	Short: "Face enrollment and attendance recording",
	Long: `faceattend enrolls people from a photo or a camera capture, recognizes
enrolled faces in a live camera feed and records attendance for every match.
Attendance can be listed, exported to CSV or served over a local HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
		log.Printf("Info: could not load %s: %v", envFile, err)
	}
}
