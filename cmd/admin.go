package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// newAdmin builds the admin client; only the API key is required.
func (r *app) newAdmin() (*assistant.Admin, error) {
	if r.cfg.OpenAI.APIKey == "" {
		return nil, cerrors.E(cerrors.KindConfig, "OpenAI API key is not set; configure OPENAI_API_KEY or openai.api_key")
	}
	a := assistant.NewAdmin(r.svc)
	a.Skipped = func(path string) {
		fmt.Fprintf(os.Stderr, "skip %s (unsupported type)\n", path)
	}
	a.Progress = func(b assistant.BatchStatus) {
		fmt.Fprintf(os.Stderr, "\rindexing: %d/%d done, %d failed", b.Completed, b.Total, b.Failed)
	}
	return a, nil
}

func newAssistantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Manage the remote assistant",
	}
	cmd.AddCommand(newAssistantCreateCmd(), newAssistantShowCmd(), newAssistantAttachCmd())
	return cmd
}

func newAssistantCreateCmd() *cobra.Command {
	var name, instructions, vectorStore string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assistant with file search",
		Example: `  chatdesk assistant create --name "Ops analyst" --vector-store vs_123
  chatdesk assistant create -m gpt-4o-mini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt := newApp(ctx)
			defer rt.close()

			admin, err := rt.newAdmin()
			if err != nil {
				return err
			}
			if vectorStore == "" {
				vectorStore = rt.cfg.OpenAI.VectorStoreID
			}
			info, err := admin.CreateAssistant(ctx, assistant.AssistantSpec{
				Name:          name,
				Model:         rt.cfg.OpenAI.Model,
				Instructions:  instructions,
				VectorStoreID: vectorStore,
			})
			if err != nil {
				return err
			}
			rt.log.Info().Str("assistant_id", info.ID).Msg("assistant created")
			printAssistant(info)
			fmt.Printf("\nSet ASSISTANT_ID=%s to chat with it.\n", info.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", assistant.DefaultAssistantName, "assistant name")
	cmd.Flags().StringVar(&instructions, "instructions", assistant.DefaultAssistantInstructions, "assistant instructions")
	cmd.Flags().StringVar(&vectorStore, "vector-store", "", "vector store to search (default VECTOR_STORE_ID)")
	return cmd
}

func newAssistantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [assistant-id]",
		Short: "Show an assistant (default ASSISTANT_ID)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt := newApp(ctx)
			defer rt.close()

			admin, err := rt.newAdmin()
			if err != nil {
				return err
			}
			id := rt.cfg.OpenAI.AssistantID
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return cerrors.E(cerrors.KindConfig, "no assistant given; pass an ID or set ASSISTANT_ID")
			}
			info, err := admin.GetAssistant(ctx, id)
			if err != nil {
				return err
			}
			printAssistant(info)
			return nil
		},
	}
}

func newAssistantAttachCmd() *cobra.Command {
	var vectorStore string

	cmd := &cobra.Command{
		Use:   "attach [vector-store-id]",
		Short: "Attach a vector store to the assistant (default VECTOR_STORE_ID)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt := newApp(ctx)
			defer rt.close()

			admin, err := rt.newAdmin()
			if err != nil {
				return err
			}
			vs := rt.cfg.OpenAI.VectorStoreID
			switch {
			case len(args) == 1:
				vs = args[0]
			case vectorStore != "":
				vs = vectorStore
			}
			switch {
			case rt.cfg.OpenAI.AssistantID == "":
				return cerrors.E(cerrors.KindConfig, "assistant ID is not set; configure ASSISTANT_ID or pass --assistant")
			case vs == "":
				return cerrors.E(cerrors.KindConfig, "no vector store given; pass an ID or set VECTOR_STORE_ID")
			}
			info, err := admin.AttachVectorStore(ctx, rt.cfg.OpenAI.AssistantID, vs)
			if err != nil {
				return err
			}
			rt.log.Info().Str("assistant_id", info.ID).Str("vector_store_id", vs).Msg("vector store attached")
			printAssistant(info)
			return nil
		},
	}
	cmd.Flags().StringVar(&vectorStore, "vector-store", "", "vector store to attach (default VECTOR_STORE_ID)")
	return cmd
}

func newVectorStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectorstore",
		Short: "Manage vector stores",
	}

	var name, dir string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a vector store from the files in a directory",
		Example: `  chatdesk vectorstore create --dir ./data --name "Plant data"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			rt := newApp(ctx)
			defer rt.close()

			admin, err := rt.newAdmin()
			if err != nil {
				return err
			}
			id, status, err := admin.CreateVectorStore(ctx, name, dir)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				if id != "" {
					return fmt.Errorf("vector store %s: %w", id, err)
				}
				return err
			}
			rt.log.Info().Str("vector_store_id", id).Str("status", status.Status).
				Int("files", status.Total).Int("failed", status.Failed).Msg("vector store created")

			fmt.Printf("Vector store: %s\n", id)
			fmt.Printf("Files:        %d indexed, %d failed (%s)\n", status.Completed, status.Failed, status.Status)
			fmt.Printf("\nSet VECTOR_STORE_ID=%s and run `chatdesk assistant attach`.\n", id)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", assistant.DefaultVectorStoreName, "vector store name")
	create.Flags().StringVar(&dir, "dir", assistant.DefaultDataDir, "directory with the files to upload")

	cmd.AddCommand(create)
	return cmd
}

func printAssistant(info assistant.AssistantInfo) {
	fmt.Printf("ID:            %s\n", info.ID)
	fmt.Printf("Name:          %s\n", info.Name)
	fmt.Printf("Model:         %s\n", info.Model)
	if len(info.Tools) > 0 {
		fmt.Printf("Tools:         %s\n", strings.Join(info.Tools, ", "))
	}
	if len(info.VectorStoreIDs) > 0 {
		fmt.Printf("Vector stores: %s\n", strings.Join(info.VectorStoreIDs, ", "))
	}
	if info.Instructions != "" {
		fmt.Printf("Instructions:  %s\n", info.Instructions)
	}
}
