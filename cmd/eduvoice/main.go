package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "eduvoice",
	Short: "EduVoice AI tutoring backend",
	Long:  "EduVoice serves AI-generated lectures, quizzes, timed exams and interview feedback, charging each paid operation against a per-learner token ledger.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, e.g. configs/eduvoice.example.yaml (default: built-in defaults plus EDUVOICE_* env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
