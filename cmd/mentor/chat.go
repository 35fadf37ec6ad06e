package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/tutor"
)

// chatService is the part of tutor.Service the chat loop drives.
type chatService interface {
	PostMessage(ctx context.Context, sessionID, text string, artifactIDs []string, milestone *agent.MilestoneContext) (orchestrator.Result, error)
	UploadArtifact(ctx context.Context, sessionID, kind string, data []byte, mimeType string) (session.Artifact, error)
	ExportSession(sessionID string) (interactions.ExportPaths, error)
}

const chatHelp = `Commands:
  /upload <path> [kind]  attach an image (sketch, plan, elevation, 3d, photo, other)
  /export                write the session exports
  /quit                  leave the session`

// chatLoop reads one student message per line until EOF or /quit. Uploaded
// artifacts are referenced by the next message.
func chatLoop(ctx context.Context, svc chatService, sessionID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var pending []string

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(out, chatHelp)
		case line == "/export":
			paths, err := svc.ExportSession(sessionID)
			if err != nil {
				fmt.Fprintf(out, "export failed: %v\n", err)
				break
			}
			for _, p := range append(paths.CSV, paths.JSON...) {
				fmt.Fprintln(out, p)
			}
		case strings.HasPrefix(line, "/upload"):
			a, err := uploadFromLine(ctx, svc, sessionID, strings.Fields(line)[1:])
			if err != nil {
				fmt.Fprintf(out, "upload failed: %v\n", err)
				break
			}
			pending = append(pending, a.ID)
			fmt.Fprintf(out, "attached %s\n", a.ID)
			if a.Analysis != nil {
				fmt.Fprintf(out, "seen: %s\n", a.Analysis.Summary())
			}
		default:
			res, err := svc.PostMessage(ctx, sessionID, line, pending, nil)
			if err != nil {
				var verr *tutor.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(out, "%v\n", verr)
					break
				}
				return err
			}
			pending = nil
			printTutor(out, string(res.RoutingPath), res.Response)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func uploadFromLine(ctx context.Context, svc chatService, sessionID string, args []string) (session.Artifact, error) {
	if len(args) == 0 {
		return session.Artifact{}, errors.New("usage: /upload <path> [kind]")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return session.Artifact{}, err
	}
	kind := ""
	if len(args) > 1 {
		kind = args[1]
	}
	return svc.UploadArtifact(ctx, sessionID, kind, data, "")
}
