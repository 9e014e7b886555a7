package document

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/foxseedlab/kikitori/external/awsclient"
	"github.com/foxseedlab/kikitori/internal/document"
)

const textractServiceName = "textract"

type detectDocumentTextAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextractDetector struct {
	api detectDocumentTextAPI
}

func NewTextractDetector(api detectDocumentTextAPI) document.Detector {
	return &TextractDetector{api: api}
}

func (d *TextractDetector) DetectText(ctx context.Context, ref document.ObjectRef) ([]document.Block, error) {
	out, err := d.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{
			S3Object: &types.S3Object{
				Bucket: aws.String(ref.Bucket),
				Name:   aws.String(ref.Key),
			},
		},
	})
	if err != nil {
		return nil, awsclient.Classify(textractServiceName, "DetectDocumentText", err)
	}
	blocks := make([]document.Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		blocks = append(blocks, document.Block{
			Type: document.BlockType(b.BlockType),
			Text: aws.ToString(b.Text),
		})
	}
	return blocks, nil
}
