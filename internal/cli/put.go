package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/chunker"
	"github.com/rcliao/tiermem/internal/model"
	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("type", "", "Memory type, e.g. conversation, fact, note")
	cmd.Flags().Float64P("importance", "i", model.DefaultImportance, "Importance in [0,1]")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringP("source", "s", "", "Where the memory came from")
	cmd.Flags().Bool("chunk", false, "Split long content into one memory per section")
	cmd.Flags().Int("chunk-size", chunker.DefaultMaxSize, "Max bytes per chunk with --chunk")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetFloat64("importance")
	tagsStr, _ := cmd.Flags().GetString("tags")
	source, _ := cmd.Flags().GetString("source")
	chunk, _ := cmd.Flags().GetBool("chunk")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")

	content := readContent(args)
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	pieces := []string{strings.TrimSpace(content)}
	if chunk {
		pieces = pieces[:0]
		for _, w := range chunker.Split(content, chunkSize) {
			pieces = append(pieces, w.Text)
		}
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	var stored []*model.Memory
	for _, text := range pieces {
		mem, err := rt.store.Put(ctx, store.PutParams{
			Content:    text,
			Type:       typ,
			Importance: &importance,
			Tags:       splitTags(tagsStr),
			Source:     source,
		})
		if err != nil {
			exitErr("put", err)
		}
		stored = append(stored, mem)
	}
	rt.mustSave(ctx)

	out := cmd.OutOrStdout()
	if textMode() {
		for _, m := range stored {
			fmt.Fprintln(out, m.ID)
		}
		return
	}
	if len(stored) == 1 {
		printJSON(out, stored[0])
		return
	}
	printJSON(out, stored)
}

// readContent takes positional args first, then piped stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}
