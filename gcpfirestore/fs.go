// Copyright 2025 The FireSchema Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gcpfirestore provides a fireschema driver backed by Google Cloud
// Firestore. Use OpenCollection to construct a driver.Collection for
// fireschema.NewCollection.
//
// Value types not supported by Firestore:
//   - unsigned integers: encoded as int64s
//
// Firestore types not supported by this driver:
//   - Document reference (a pointer to another Firestore document)
//
// # Queries
//
// All ten query operators are sent to the Firestore service as is. Firestore
// restricts which combinations of filters can run without a composite index;
// if a query needs an index that does not exist, the service reports a
// FailedPrecondition error with a link for creating it. See
// https://cloud.google.com/firestore/docs/query-data/indexing for details.
package gcpfirestore // import "github.com/shtse8/fireschema-go-runtime/gcpfirestore"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	vkit "cloud.google.com/go/firestore/apiv1"
	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/wire"
	"github.com/shtse8/fireschema-go-runtime/driver"
	"github.com/shtse8/fireschema-go-runtime/fserrors"
	"github.com/shtse8/fireschema-go-runtime/internal/fserr"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Dial returns a client to use with Firestore and a clean-up function to
// close the client after use.
// If the FIRESTORE_EMULATOR_HOST environment variable is set the client
// connects to the Firestore emulator by overriding the default endpoint.
func Dial(ctx context.Context, opts ...option.ClientOption) (*vkit.Client, func(), error) {
	if host := os.Getenv("FIRESTORE_EMULATOR_HOST"); host != "" {
		conn, err := grpc.NewClient(host, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithGRPCConn(conn),
		)
	}
	c, err := vkit.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

// Set holds Wire providers for this package.
var Set = wire.NewSet(Dial)

// CollectionResourceID constructs a resource ID for a collection from the
// project ID and the collection path. See the OpenCollection doc for use.
func CollectionResourceID(projectID, collPath string) string {
	return fmt.Sprintf("projects/%s/databases/(default)/documents/%s", projectID, collPath)
}

// CollectionResourceIDWithDatabase constructs a resource ID for a collection
// from the project ID, database ID, and the collection path.
func CollectionResourceIDWithDatabase(projectID, databaseID, collPath string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s", projectID, databaseID, collPath)
}

var resourceIDRE = regexp.MustCompile(`^(projects/[^/]+/databases/[^/]+)/documents/.+`)

// OpenCollection creates a driver.Collection representing a Firestore
// collection.
//
// collResourceID must be of the form
// "projects/<projectID>/databases/(default)/documents/<collPath>".
// <collPath> may be a top-level collection, like "States", or it may be a
// path to a nested collection, like "States/Wisconsin/Cities".
// See https://cloud.google.com/firestore/docs/reference/rest/ for more
// detail.
func OpenCollection(client *vkit.Client, collResourceID string) (driver.Collection, error) {
	matches := resourceIDRE.FindStringSubmatch(collResourceID)
	if matches == nil {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: bad collection resource ID %q; must match %v",
			collResourceID, resourceIDRE)
	}
	return &collection{
		client:   client,
		dbPath:   matches[1],
		collPath: collResourceID,
	}, nil
}

type collection struct {
	client   *vkit.Client
	dbPath   string // e.g. "projects/P/databases/(default)"
	collPath string // e.g. "projects/P/databases/(default)/documents/States/Wisconsin/cities"
}

// Doc implements driver.Collection.Doc.
func (c *collection) Doc(id string) (driver.DocumentRef, error) {
	if id == "" {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: empty document ID")
	}
	if strings.ContainsRune(id, '/') {
		return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: document ID %q contains '/'", id)
	}
	return &docRef{coll: c, id: id, docPath: c.collPath + "/" + id}, nil
}

// ErrorCode implements driver.Collection.ErrorCode.
func (c *collection) ErrorCode(err error) fserrors.ErrorCode {
	return fserr.GRPCCode(err)
}

// Close implements driver.Collection.Close.
func (c *collection) Close() error { return nil }

type docRef struct {
	coll    *collection
	id      string
	docPath string
}

func (d *docRef) ID() string { return d.id }

// Get implements driver.DocumentRef.Get by calling the BatchGetDocuments RPC
// with a single document. An absent document is reported through the
// snapshot's Exists field, not as an error.
func (d *docRef) Get(ctx context.Context) (driver.Snapshot, error) {
	c := d.coll
	req := &pb.BatchGetDocumentsRequest{
		Database:  c.dbPath,
		Documents: []string{d.docPath},
	}
	streamClient, err := c.client.BatchGetDocuments(withResourceHeader(ctx, req.Database), req)
	if err != nil {
		return driver.Snapshot{}, err
	}
	for {
		resp, err := streamClient.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return driver.Snapshot{}, err
		}
		switch r := resp.Result.(type) {
		case *pb.BatchGetDocumentsResponse_Found:
			return decodeDoc(r.Found, d.id)
		case *pb.BatchGetDocumentsResponse_Missing:
			return driver.Snapshot{ID: d.id}, nil
		default:
			return driver.Snapshot{}, fserr.Newf(fserr.InternalError, nil, "gcpfirestore: unknown BatchGetDocumentsResponse result type")
		}
	}
	return driver.Snapshot{}, fserr.Newf(fserr.InternalError, nil, "gcpfirestore: no BatchGetDocuments response for %q", d.docPath)
}

// Set implements driver.DocumentRef.Set.
func (d *docRef) Set(ctx context.Context, fields map[string]interface{}) (driver.WriteResult, error) {
	pdoc, err := encodeDoc(fields)
	if err != nil {
		return driver.WriteResult{}, err
	}
	pdoc.Name = d.docPath
	w := &pb.Write{Operation: &pb.Write_Update{Update: pdoc}}
	return d.coll.commit1(ctx, []*pb.Write{w})
}

// Update implements driver.DocumentRef.Update. Literal values and deletions
// go in one update-mask write; server timestamps, increments and array
// mutations become field transforms on a second write. Both writes go in a
// single CommitRequest, so the whole update is atomic, and the first carries
// an existence precondition so updating a missing document fails with
// NotFound.
func (d *docRef) Update(ctx context.Context, mods []driver.Mod) (driver.WriteResult, error) {
	fields, maskPaths, transforms, err := processMods(mods)
	if err != nil {
		return driver.WriteResult{}, err
	}
	pc := &pb.Precondition{ConditionType: &pb.Precondition_Exists{Exists: true}}
	var ws []*pb.Write
	if len(fields) > 0 || len(maskPaths) > 0 {
		ws = append(ws, &pb.Write{
			Operation: &pb.Write_Update{Update: &pb.Document{
				Name:   d.docPath,
				Fields: fields,
			}},
			UpdateMask:      &pb.DocumentMask{FieldPaths: maskPaths},
			CurrentDocument: pc,
		})
		pc = nil // If the precondition is in the write, we don't need it in the transform.
	}
	if len(transforms) > 0 {
		ws = append(ws, &pb.Write{
			Operation: &pb.Write_Transform{
				Transform: &pb.DocumentTransform{
					Document:        d.docPath,
					FieldTransforms: transforms,
				},
			},
			CurrentDocument: pc,
		})
	}
	return d.coll.commit1(ctx, ws)
}

// Delete implements driver.DocumentRef.Delete. Deleting a nonexistent
// document is not an error.
func (d *docRef) Delete(ctx context.Context) error {
	w := &pb.Write{Operation: &pb.Write_Delete{Delete: d.docPath}}
	_, err := d.coll.commit1(ctx, []*pb.Write{w})
	return err
}

// processMods converts the mods into the fields and mask paths for an
// update-mask write, and the field transforms for a transform write. A field
// being deleted goes in the mask but not in the fields.
func processMods(mods []driver.Mod) (fields map[string]*pb.Value, maskPaths []string, transforms []*pb.DocumentTransform_FieldTransform, err error) {
	fields = map[string]*pb.Value{}
	for _, m := range mods {
		sfp := toServiceFieldPath(m.FieldPath)
		switch v := m.Value.(type) {
		case driver.DeleteOp:
			maskPaths = append(maskPaths, sfp)
		case driver.ServerTimestampOp:
			transforms = append(transforms, &pb.DocumentTransform_FieldTransform{
				FieldPath: sfp,
				TransformType: &pb.DocumentTransform_FieldTransform_SetToServerValue{
					SetToServerValue: pb.DocumentTransform_FieldTransform_REQUEST_TIME,
				},
			})
		case driver.IncOp:
			pv, err := encodeValue(v.Amount)
			if err != nil {
				return nil, nil, nil, err
			}
			transforms = append(transforms, &pb.DocumentTransform_FieldTransform{
				FieldPath: sfp,
				TransformType: &pb.DocumentTransform_FieldTransform_Increment{
					Increment: pv,
				},
			})
		case driver.ArrayUnionOp:
			av, err := encodeArray(v.Elems)
			if err != nil {
				return nil, nil, nil, err
			}
			transforms = append(transforms, &pb.DocumentTransform_FieldTransform{
				FieldPath: sfp,
				TransformType: &pb.DocumentTransform_FieldTransform_AppendMissingElements{
					AppendMissingElements: av,
				},
			})
		case driver.ArrayRemoveOp:
			av, err := encodeArray(v.Elems)
			if err != nil {
				return nil, nil, nil, err
			}
			transforms = append(transforms, &pb.DocumentTransform_FieldTransform{
				FieldPath: sfp,
				TransformType: &pb.DocumentTransform_FieldTransform_RemoveAllFromArray{
					RemoveAllFromArray: av,
				},
			})
		default:
			pv, err := encodeValue(m.Value)
			if err != nil {
				return nil, nil, nil, err
			}
			maskPaths = append(maskPaths, sfp)
			if err := setAtFieldPath(fields, m.FieldPath, pv); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	return fields, maskPaths, transforms, nil
}

// commit1 runs one Commit RPC for the writes of a single logical operation
// and returns the commit time.
func (c *collection) commit1(ctx context.Context, ws []*pb.Write) (driver.WriteResult, error) {
	req := &pb.CommitRequest{
		Database: c.dbPath,
		Writes:   ws,
	}
	res, err := c.client.Commit(withResourceHeader(ctx, req.Database), req)
	if err != nil {
		return driver.WriteResult{}, err
	}
	if len(res.WriteResults) != len(ws) {
		return driver.WriteResult{}, fserr.Newf(fserr.InternalError, nil, "gcpfirestore: wrong number of WriteResults from firestore commit")
	}
	var wr driver.WriteResult
	if res.CommitTime != nil {
		wr.UpdateTime = res.CommitTime.AsTime()
	}
	return wr, nil
}

// setAtFieldPath sets m's value at fp to val. It creates intermediate maps
// as needed. It returns an error if a non-final component of fp does not
// denote a map.
func setAtFieldPath(m map[string]*pb.Value, fp []string, val *pb.Value) error {
	m2, err := getParentMap(m, fp)
	if err != nil {
		return err
	}
	m2[fp[len(fp)-1]] = val
	return nil
}

// getParentMap returns the map that directly contains the given field path;
// that is, the value of m at the field path that excludes the last component
// of fp, adding intermediate maps as needed. If a non-map is encountered
// along the way, an InvalidArgument error is returned.
func getParentMap(m map[string]*pb.Value, fp []string) (map[string]*pb.Value, error) {
	for _, k := range fp[:len(fp)-1] {
		if m[k] == nil {
			m[k] = &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{}}}}
		}
		mv := m[k].GetMapValue()
		if mv == nil {
			return nil, fserr.Newf(fserr.InvalidArgument, nil, "gcpfirestore: invalid field path %q at %q", strings.Join(fp, "."), k)
		}
		m = mv.Fields
	}
	return m, nil
}

// toServiceFieldPath converts a split field path into the kind of field path
// that the Firestore service expects: a string of dot-separated components,
// some of which may be quoted.
func toServiceFieldPath(fp []string) string {
	cs := make([]string, len(fp))
	for i, c := range fp {
		cs[i] = toServiceFieldPathComponent(c)
	}
	return strings.Join(cs, ".")
}

// Google SQL syntax for an unquoted field.
var unquotedFieldRE = regexp.MustCompile("^[A-Za-z_][A-Za-z_0-9]*$")

// toServiceFieldPathComponent returns a string that represents key and is a
// valid Firestore field path component. Components must be quoted with
// backticks if they don't match the above regexp.
func toServiceFieldPathComponent(key string) string {
	if unquotedFieldRE.MatchString(key) {
		return key
	}
	var buf bytes.Buffer
	buf.WriteRune('`')
	for _, r := range key {
		if r == '`' || r == '\\' {
			buf.WriteRune('\\')
		}
		buf.WriteRune(r)
	}
	buf.WriteRune('`')
	return buf.String()
}

// resourcePrefixHeader is the name of the metadata header used to indicate
// the resource being operated on.
const resourcePrefixHeader = "google-cloud-resource-prefix"

// withResourceHeader returns a new context that includes resource in a
// special header. Firestore uses the resource header for routing.
func withResourceHeader(ctx context.Context, resource string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md[resourcePrefixHeader] = []string{resource}
	return metadata.NewOutgoingContext(ctx, md)
}
