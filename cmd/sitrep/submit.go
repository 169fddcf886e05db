package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

type submitOptions struct {
	from        string
	image       string
	contact     string
	category    string
	location    string
	description string
}

func newSubmitCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a report with an image",
		Example: `  sitrep submit --image crash.jpg --contact a@b.com --category traffic --location "5th Ave"
  sitrep submit --from report.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, imagePath, err := opts.resolve()
			if err != nil {
				return err
			}

			file, err := os.Open(imagePath)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer file.Close()

			image := api.ImageFile{
				Filename:    filepath.Base(imagePath),
				ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath))),
				Content:     file,
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), req, image)
				if err != nil {
					return err
				}
				if *structured {
					return writeData(resp)
				}
				return writePlain("submitted report #%d (%s)\nimage_url: %s\n", resp.ID, resp.Status, resp.ImageURL)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.from, "from", "f", "", "markdown file with YAML front matter")
	cmd.Flags().StringVar(&opts.image, "image", "", "path to the image file")
	cmd.Flags().StringVar(&opts.contact, "contact", "", "reporter email")
	cmd.Flags().StringVar(&opts.category, "category", "", "report category (traffic|suspicious)")
	cmd.Flags().StringVar(&opts.location, "location", "", "where it happened")
	cmd.Flags().StringVar(&opts.description, "description", "", "what happened")
	return cmd
}

// resolve merges the optional report file with flags. Flags win.
func (o submitOptions) resolve() (api.SubmitRequest, string, error) {
	var draft reportFile
	if o.from != "" {
		loaded, err := loadReportFile(o.from)
		if err != nil {
			return api.SubmitRequest{}, "", err
		}
		draft = loaded
	}

	req := draft.Request
	overrideIfSet(&req.ReporterContact, o.contact)
	overrideIfSet(&req.Category, o.category)
	overrideIfSet(&req.Location, o.location)
	overrideIfSet(&req.Description, o.description)

	imagePath := draft.Image
	overrideIfSet(&imagePath, o.image)
	if imagePath == "" {
		return api.SubmitRequest{}, "", fmt.Errorf("an image is required (--image or image: in --from file)")
	}
	return req, imagePath, nil
}

func overrideIfSet(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
