package cmd

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"mediacat/internal/server"
)

var (
	serveAddr    string
	serveTimeout time.Duration
	serveBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog as a local JSON API",
	Long: `Start a local HTTP server that answers catalog queries for a front end.

Routes:
  GET /api/images                  Query (from, to, camera, type, tag, q, near, radius, sync, limit, offset)
  GET /api/images/{id}             One record with its tags
  GET /api/images/{id}/thumbnail   Cached preview (size=small|medium)
  PUT /api/images/{id}/embedding   Store a vector ({"vector": [...], "model_version": "..."})
  GET /api/embeddings              Stored vectors (model=<version> to filter)
  GET /api/duplicates              Duplicate groups (similar=true, threshold)
  GET /api/stats                   Catalog summary
  GET /metrics                     Prometheus metrics

The server stops after the idle timeout without requests.

Example:
  mediacat serve                       # Listen on 127.0.0.1:8080
  mediacat serve --addr :3000 --timeout 0
  mediacat serve --open                # Open the image list in a browser`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Address to listen on")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 30*time.Minute, "Idle timeout (0 to disable)")
	serveCmd.Flags().BoolVar(&serveBrowser, "open", false, "Open the API in a browser")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", serveAddr, err)
	}

	url := fmt.Sprintf("http://%s/api/images", ln.Addr())
	fmt.Printf("Serving catalog at %s\n", url)
	if serveTimeout > 0 {
		fmt.Printf("Idle timeout: %v\n", serveTimeout)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if serveBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url)
		}()
	}

	srv := server.New(store,
		server.WithIdleTimeout(serveTimeout),
		server.WithLogger(logger),
	)
	return srv.Run(cmd.Context(), ln)
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Run()
}
