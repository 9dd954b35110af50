package s3

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rescale/credvend/internal/cloud"
)

const policyVersion = "2012-10-17"

// Action sets per privilege.
var (
	readObjectActions = []string{
		"s3:GetObject",
		"s3:GetObjectVersion",
	}
	writeObjectActions = []string{
		"s3:PutObject",
		"s3:DeleteObject",
		"s3:AbortMultipartUpload",
		"s3:ListMultipartUploadParts",
	}
)

var errNoPrivileges = errors.New("policy requires at least one privilege")

// PolicyDocument is an IAM policy as sent to STS.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one IAM policy statement.
type Statement struct {
	Sid       string                         `json:"Sid,omitempty"`
	Effect    string                         `json:"Effect"`
	Action    []string                       `json:"Action"`
	Resource  []string                       `json:"Resource"`
	Condition map[string]map[string][]string `json:"Condition,omitempty"`
}

// BuildPolicy returns the inline session policy restricting a credential to
// bucket/prefix. prefix has no leading or trailing slash; empty means the
// whole bucket.
//
// SELECT grants object reads, listing under the prefix, and GetBucketLocation.
// UPDATE grants object writes and deletes under the same prefix.
func BuildPolicy(bucket, prefix string, privileges []cloud.Privilege) (*PolicyDocument, error) {
	if bucket == "" {
		return nil, errors.New("policy requires a bucket")
	}

	var hasSelect, hasUpdate bool
	for _, p := range privileges {
		switch p {
		case cloud.PrivilegeSelect:
			hasSelect = true
		case cloud.PrivilegeUpdate:
			hasUpdate = true
		default:
			return nil, fmt.Errorf("unknown privilege %q", p)
		}
	}
	if !hasSelect && !hasUpdate {
		return nil, errNoPrivileges
	}

	bucketARN := "arn:aws:s3:::" + bucket
	var objectARNs []string
	if prefix == "" {
		objectARNs = []string{bucketARN + "/*"}
	} else {
		objectARNs = []string{bucketARN + "/" + prefix, bucketARN + "/" + prefix + "/*"}
	}

	doc := &PolicyDocument{Version: policyVersion}

	if hasSelect {
		doc.Statement = append(doc.Statement, Statement{
			Sid:      "ReadObjects",
			Effect:   "Allow",
			Action:   readObjectActions,
			Resource: objectARNs,
		})

		list := Statement{
			Sid:      "ListPrefix",
			Effect:   "Allow",
			Action:   []string{"s3:ListBucket"},
			Resource: []string{bucketARN},
		}
		if prefix != "" {
			list.Condition = map[string]map[string][]string{
				"StringLike": {"s3:prefix": {prefix, prefix + "/*"}},
			}
		}
		doc.Statement = append(doc.Statement, list, Statement{
			Sid:      "BucketLocation",
			Effect:   "Allow",
			Action:   []string{"s3:GetBucketLocation"},
			Resource: []string{bucketARN},
		})
	}

	if hasUpdate {
		doc.Statement = append(doc.Statement, Statement{
			Sid:      "WriteObjects",
			Effect:   "Allow",
			Action:   writeObjectActions,
			Resource: objectARNs,
		})
	}

	return doc, nil
}

// JSON renders the document compactly. STS limits inline policies to 2048
// characters, so no indentation.
func (d *PolicyDocument) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy: %w", err)
	}
	return string(b), nil
}
