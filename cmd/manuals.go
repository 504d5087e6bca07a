package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"manualqa/capability"
	"manualqa/internal"
	"manualqa/services"
	"manualqa/utils"
)

var (
	uploadTitle string
	deleteYes   bool
	pageOutput  string
)

var manualsCmd = &cobra.Command{
	Use:     "manuals",
	Aliases: []string{"manual"},
	Short:   "List, upload and manage manuals",
}

var manualsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your manuals",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}
		manuals, err := a.Manuals.List(cmd.Context())
		if err != nil {
			return err
		}
		printManuals(cmd.OutOrStdout(), manuals)
		return nil
	},
}

var manualsShowCmd = &cobra.Command{
	Use:   "show <ID>",
	Short: "Show one manual",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}
		m, err := a.Manuals.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printManual(cmd.OutOrStdout(), m)
		return nil
	},
}

var manualsUploadCmd = &cobra.Command{
	Use:   "upload [FILE]",
	Short: "Upload a manual (PDF, text or markdown)",
	Long: `Upload a manual. Without FILE you are prompted for a path.

Examples:
  manualqa manuals upload ~/Downloads/washer.pdf
  manualqa manuals upload --title "Washer WM-200" washer.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if len(args) == 1 {
			ctx = capability.WithPath(ctx, args[0])
		}

		var progress *utils.UploadProgress
		opts := services.UploadOptions{
			Title: uploadTitle,
			WrapBody: func(r io.Reader, size int64) io.Reader {
				if progress == nil {
					progress = utils.NewUploadProgress(size, "Uploading", cmd.ErrOrStderr(), quiet || !isTerminal(cmd.ErrOrStderr()))
				}
				return progress.Wrap(r, size)
			},
		}

		m, err := a.Manuals.Upload(ctx, opts)
		if progress != nil {
			summary := progress.Finish()
			internal.LogDebug("Upload transfer: %s", summary)
		}
		if err != nil {
			return err
		}
		if m == nil {
			printSuccess(cmd.OutOrStdout(), "Upload cancelled")
			return nil
		}

		printSuccess(cmd.OutOrStdout(), "Uploaded %s as %s", m.Title, m.ID)
		return nil
	},
}

var manualsDeleteCmd = &cobra.Command{
	Use:     "delete <ID>",
	Aliases: []string{"rm"},
	Short:   "Delete a manual",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}

		if !deleteYes {
			fmt.Fprintf(cmd.ErrOrStderr(), "Delete manual %s? [y/N] ", args[0])
			answer, err := readLine(bufio.NewReader(cmd.InOrStdin()))
			if err != nil {
				return err
			}
			if !confirmed(answer) {
				printSuccess(cmd.OutOrStdout(), "Kept %s", args[0])
				return nil
			}
		}

		if err := a.Manuals.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Deleted %s", args[0])
		return nil
	},
}

var manualsPageCmd = &cobra.Command{
	Use:   "page <ID> <PAGE>",
	Short: "Save a rendered page of a manual as an image",
	Long: `Fetch one page of a manual as an image.

Examples:
  manualqa manuals page man-42 12
  manualqa manuals page man-42 12 --output wiring.png`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := strconv.Atoi(args[1])
		if err != nil {
			return internal.NewValidationErrorWithValue("page", "must be a number", args[1])
		}

		a, err := requireSignedIn(cmd.Context())
		if err != nil {
			return err
		}

		img, err := a.Manuals.Page(cmd.Context(), args[0], page)
		if err != nil {
			return err
		}
		data, err := img.Decode()
		if err != nil {
			return err
		}

		out := pageOutput
		if out == "" {
			out = fmt.Sprintf("%s-page-%d%s", args[0], page, img.Extension())
		}
		if out == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := writeOutputFile(out, data); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Saved page %d to %s (%s)", page, out, internal.FormatBytes(int64(len(data))))
		return nil
	},
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	manualsUploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "Title shown for the manual (default: file name)")
	manualsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
	manualsPageCmd.Flags().StringVarP(&pageOutput, "output", "o", "", "Image path, or - for stdout")

	manualsCmd.AddCommand(manualsListCmd, manualsShowCmd, manualsUploadCmd, manualsDeleteCmd, manualsPageCmd)
}
