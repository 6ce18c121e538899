package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"properpakistan-api/internal/domain"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type profileView struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Role   string `json:"role" yaml:"role"`
}

func toView(p *domain.Profile) profileView {
	return profileView{ID: p.ID, Name: p.Name, Email: p.Email, Avatar: p.AvatarURL, Role: p.Role}
}

func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
	}
}

func printProfile(w io.Writer, format string, p *domain.Profile) error {
	if format != formatText {
		return writeStructured(w, format, toView(p))
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Email:\t%s\n", p.Email)
	if p.AvatarURL != "" {
		fmt.Fprintf(tw, "Avatar:\t%s\n", p.AvatarURL)
	}
	fmt.Fprintf(tw, "Role:\t%s\n", p.Role)
	return tw.Flush()
}

func printUsers(w io.Writer, format string, users []domain.Profile) error {
	if format != formatText {
		views := make([]profileView, 0, len(users))
		for i := range users {
			views = append(views, toView(&users[i]))
		}
		return writeStructured(w, format, views)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return tw.Flush()
}

func printBookmarks(w io.Writer, format string, bookmarks []domain.Bookmark) error {
	if format != formatText {
		return writeStructured(w, format, bookmarks)
	}
	if len(bookmarks) == 0 {
		fmt.Fprintln(w, "No bookmarks yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POST\tSAVED")
	for _, b := range bookmarks {
		fmt.Fprintf(tw, "%s\t%s\n", b.PostID, b.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
