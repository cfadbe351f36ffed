package sanity

import (
	"net/http"
	"testing"

	"github.com/zots0127/io/blobs"
	"github.com/zots0127/io/server"
)

const testAPIKey = "sanity-key"

var testServer = newTestServer()

func newTestServer() *server.Server {
	s, err := server.New(blobs.NewInMemBlobStore(0), blobs.NewEventStream(), ":0", testAPIKey, "")
	if err != nil {
		panic(err)
	}
	return s
}

func TestBlobLifecycle(t *testing.T) {
	tc := NewCase("Blob Lifecycle")

	store := tc.StartWithBlob("Store returns the content digest", "Hello, IO Storage!", testAPIKey).
		ExpectDigest("9bb4dced33ebd2ab9b829686df3ad5923b08846b")

	store.ThenCall(http.MethodGet, "/api/exists/:digest").WithAPIKey(testAPIKey).
		ExpectExists(true)

	fetched := store.ThenCall(http.MethodGet, "/api/file/:digest").WithAPIKey(testAPIKey).
		ExpectStatus(200).ExpectBody("Hello, IO Storage!")

	deleted := fetched.ThenCall(http.MethodDelete, "/api/file/:digest").WithAPIKey(testAPIKey).
		ExpectStatus(200)

	deleted.ThenCall(http.MethodGet, "/api/exists/:digest").WithAPIKey(testAPIKey).
		ExpectExists(false)

	deleted.ThenCall(http.MethodGet, "/api/file/:digest").WithAPIKey(testAPIKey).
		ExpectServerErr(server.ErrBlobNotFound)

	tc.Run(t, testServer)
}

func TestStoreDeduplicates(t *testing.T) {
	tc := NewCase("Dedup")
	digest := string(blobs.DigestOf([]byte("repeated content")))

	tc.StartWithBlob("First store", "repeated content", testAPIKey).
		ExpectDigest(digest).
		ThenCall(http.MethodPost, "/api/store").WithBlobFile("repeated content").WithAPIKey(testAPIKey).
		ExpectBlobStored().ExpectDigest(digest)

	tc.Run(t, testServer)
}

func TestAuthRequired(t *testing.T) {
	tc := NewCase("Auth")

	tc.Call("Store rejects missing key", http.MethodPost, "/api/store").WithBodyString("data").
		ExpectServerErr(server.ErrUnauthorized)
	tc.Call("Store rejects wrong key", http.MethodPost, "/api/store").WithBodyString("data").WithAPIKey("wrong").
		ExpectServerErr(server.ErrUnauthorized)
	tc.Call("Exists rejects missing key", http.MethodGet, "/api/exists/9bb4dced33ebd2ab9b829686df3ad5923b08846b").
		ExpectServerErr(server.ErrUnauthorized)
	tc.Call("Fetch rejects missing key", http.MethodGet, "/api/file/9bb4dced33ebd2ab9b829686df3ad5923b08846b").
		ExpectServerErr(server.ErrUnauthorized)
	tc.Call("Delete rejects missing key", http.MethodDelete, "/api/file/9bb4dced33ebd2ab9b829686df3ad5923b08846b").
		ExpectServerErr(server.ErrUnauthorized)

	tc.Run(t, testServer)
}

func TestValidation(t *testing.T) {
	tc := NewCase("Validation")

	tc.Call("Fetch rejects malformed digest", http.MethodGet, "/api/file/nope").WithAPIKey(testAPIKey).
		ExpectServerErr(server.ErrInvalidDigest)
	tc.Call("Exists rejects malformed digest", http.MethodGet, "/api/exists/nope").WithAPIKey(testAPIKey).
		ExpectServerErr(server.ErrInvalidDigest)
	tc.Call("Delete rejects malformed digest", http.MethodDelete, "/api/file/nope").WithAPIKey(testAPIKey).
		ExpectServerErr(server.ErrInvalidDigest)
	tc.Call("Store rejects empty body", http.MethodPost, "/api/store").WithAPIKey(testAPIKey).
		ExpectServerErr(server.ErrMissingBody)

	tc.Run(t, testServer)
}

func TestRawBodyStore(t *testing.T) {
	tc := NewCase("Raw body store")

	tc.Call("Raw body works without multipart", http.MethodPost, "/api/store").
		WithBodyString("Hello, IO Storage!").WithAPIKey(testAPIKey).
		ExpectBlobStored().ExpectDigest("9bb4dced33ebd2ab9b829686df3ad5923b08846b")

	tc.Run(t, testServer)
}
