package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var root = &cobra.Command{Use: "sopguard", SilenceUsage: true}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml)")

	root.AddCommand(serveCMD(&cfgPath), ingestCMD(&cfgPath), seedCMD(&cfgPath), migrateCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		log.Printf("sopguard: %v", err)
		os.Exit(1)
	}
}
