package templatestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESStore implements Store on top of AWS SES email templates.
type SESStore struct {
	client *ses.Client
}

func NewSES(client *ses.Client) *SESStore {
	return &SESStore{client: client}
}

func (s *SESStore) List(ctx context.Context) ([]string, error) {
	var names []string
	var nextToken *string

	for {
		out, err := s.client.ListTemplates(ctx, &ses.ListTemplatesInput{
			MaxItems:  aws.Int32(100),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list ses templates: %w", err)
		}

		for _, meta := range out.TemplatesMetadata {
			names = append(names, aws.ToString(meta.Name))
		}

		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			return names, nil
		}
		nextToken = out.NextToken
	}
}

func (s *SESStore) Get(ctx context.Context, name string) (Template, error) {
	out, err := s.client.GetTemplate(ctx, &ses.GetTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("get ses template %q: %w", name, err)
	}

	return Template{
		Name:    aws.ToString(out.Template.TemplateName),
		HTML:    aws.ToString(out.Template.HtmlPart),
		Subject: aws.ToString(out.Template.SubjectPart),
	}, nil
}

// CreateOrUpdate replaces the stored template. SES has no upsert, so an
// existing template is deleted first.
func (s *SESStore) CreateOrUpdate(ctx context.Context, name, html, subjectDefault string) error {
	_, err := s.client.DeleteTemplate(ctx, &ses.DeleteTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("replace ses template %q: %w", name, err)
	}

	_, err = s.client.CreateTemplate(ctx, &ses.CreateTemplateInput{
		Template: &types.Template{
			TemplateName: aws.String(name),
			HtmlPart:     aws.String(html),
			TextPart:     aws.String(""),
			SubjectPart:  aws.String(subjectDefault),
		},
	})
	if err != nil {
		return fmt.Errorf("create ses template %q: %w", name, err)
	}
	return nil
}

func (s *SESStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteTemplate(ctx, &ses.DeleteTemplateInput{
		TemplateName: aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete ses template %q: %w", name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.TemplateDoesNotExistException
	return errors.As(err, &notFound)
}
