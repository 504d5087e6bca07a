package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"manualqa/services"
)

var (
	askManual       string
	askConversation string
	askVoice        bool
	askMaxSeconds   float64
	askPlain        bool
)

var askCmd = &cobra.Command{
	Use:   "ask [QUESTION...]",
	Short: "Ask a question about your manuals",
	Long: `Ask a question by text, or speak it with --voice. Answers are rendered as
markdown with the manual pages they came from.

Examples:
  manualqa ask "How do I descale the coffee machine?"
  manualqa ask --manual man-42 "What does error E4 mean?"
  manualqa ask --voice --max-seconds 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if !askVoice && question == "" {
			return fmt.Errorf("a question is required (or use --voice)")
		}

		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		styled := !askPlain && isTerminal(w)

		if askVoice {
			rec, err := captureClip(cmd.Context(), a.Resolver.AudioCapture(), askMaxSeconds, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			answer, err := a.Query.AskVoice(cmd.Context(), rec, askManual)
			if err != nil {
				return err
			}
			printTranscript(w, answer.Transcript, styled)
			printAnswer(w, answer.Answer, answer.Sources, styled)
			return nil
		}

		answer, err := a.Query.Ask(cmd.Context(), services.AskRequest{
			Question:       question,
			ManualID:       askManual,
			ConversationID: askConversation,
		})
		if err != nil {
			return err
		}
		printAnswer(w, answer.Answer, answer.Sources, styled)
		if answer.ConversationID != "" && !quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("Follow up with --conversation "+answer.ConversationID))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askManual, "manual", "m", "", "Limit the answer to one manual")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "Continue an earlier conversation")
	askCmd.Flags().BoolVar(&askVoice, "voice", false, "Record the question from the microphone")
	askCmd.Flags().Float64Var(&askMaxSeconds, "max-seconds", DefaultVoiceSeconds, "Longest voice question in seconds")
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "Print the answer without markdown styling")
}
