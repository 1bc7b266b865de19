package cmd

import (
	"github.com/spf13/cobra"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Open a practice room",
	Long: "Open a practice room for a session. Each question gets a think countdown,\n" +
		"then a recorded answer that is uploaded when you move on.",
	Example: "  rehearse practice --session 8f1c --questions questions.json\n" +
		"  rehearse practice --questions questions.json --synthetic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPractice(cmd)
	},
}

func init() {
	practiceCmd.Flags().String("session", "", "Backend session id; empty practices without uploading")
	practiceCmd.Flags().String("questions", "", "Path to the question file (JSON)")
	practiceCmd.Flags().Bool("synthetic", false, "Use generated media instead of the camera")
	practiceCmd.Flags().Int("think-seconds", 0, "Override the think countdown")
	practiceCmd.Flags().Int("record-seconds", 0, "Override the answer time cap")
	_ = practiceCmd.MarkFlagRequired("questions")
}
