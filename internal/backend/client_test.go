// ABOUTME: Tests for the backend client against an httptest fake of the session and audit APIs.
// ABOUTME: Covers request shapes, fail-closed decoding, status errors, and multipart uploads.

package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		AuthURL:    srv.URL + "/",
		APIURL:     srv.URL,
		BucketName: "audit-bucket",
		Region:     "us-east-1",
		Credentials: Credentials{
			Username:  "auditor",
			Password:  "secret",
			CompanyID: 7,
			UserID:    9,
		},
	})
	require.NoError(t, err)
	return client
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestNewClient_RequiresURLs(t *testing.T) {
	_, err := NewClient(Config{APIURL: "http://x", BucketName: "b"})
	assert.Error(t, err)
	_, err = NewClient(Config{AuthURL: "http://x", BucketName: "b"})
	assert.Error(t, err)
	_, err = NewClient(Config{AuthURL: "http://x", APIURL: "http://y"})
	assert.Error(t, err)
}

func TestObtainToken(t *testing.T) {
	t.Run("sends password grant", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/token", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "auditor", r.PostForm.Get("username"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
		}))

		token, err := client.ObtainToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("non-2xx is an auth failure", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
		}))

		_, err := client.ObtainToken(t.Context())
		require.ErrorIs(t, err, ErrAuth)

		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
		assert.Contains(t, se.Body, "bad credentials")
	})

	t.Run("missing access_token fails closed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
		}))

		_, err := client.ObtainToken(t.Context())
		assert.ErrorIs(t, err, ErrAuth)
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestCreateSession(t *testing.T) {
	t.Run("posts session payload and keeps raw response", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sessions/add", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			body := decodeBody(t, r)
			assert.EqualValues(t, 7, body["company_id"])
			assert.EqualValues(t, 9, body["user_id"])
			assert.Equal(t, "Q3 audit", body["name"])
			assert.EqualValues(t, 1, body["is_info_source"])
			assert.NotContains(t, body, "parent_session_id")
			_, _ = w.Write([]byte(`{"session":{"session_id":42,"name":"Q3 audit","created_at":"2024-01-01"}}`))
		}))

		resp, err := client.CreateSession(t.Context(), "tok", SessionRequest{
			Name:         "Q3 audit",
			AnalysisType: AnalysisTypeAudit,
			IsInfoSource: 1,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 42, resp.Session.ID)

		out, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"created_at":"2024-01-01"`)
	})

	t.Run("string session id is accepted", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session":{"session_id":"314"}}`))
		}))

		resp, err := client.CreateSession(t.Context(), "tok", SessionRequest{Name: "x"})
		require.NoError(t, err)
		assert.EqualValues(t, 314, resp.Session.ID)
	})

	t.Run("missing session id fails closed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session":{}}`))
		}))

		_, err := client.CreateSession(t.Context(), "tok", SessionRequest{Name: "x"})
		assert.ErrorIs(t, err, ErrSessionCreate)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("parent id is sent for chat sessions", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.EqualValues(t, 5, body["parent_session_id"])
			assert.EqualValues(t, 0, body["is_info_source"])
			assert.Equal(t, "chat", body["process_name"])
			_, _ = w.Write([]byte(`{"session":{"session_id":6}}`))
		}))

		parent := int64(5)
		_, err := client.CreateSession(t.Context(), "tok", SessionRequest{
			Name:            "chat",
			ProcessName:     "chat",
			ParentSessionID: &parent,
		})
		require.NoError(t, err)
	})
}

func TestListSessions(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/list", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"message":"ok","sessions":[{"session_id":1,"name":"a"},{"session_id":2,"name":"b"}]}`))
	}))

	t.Run("parent sessions", func(t *testing.T) {
		list, err := client.ListSessions(t.Context(), "tok", SessionFilter{UserID: 3, InfoSource: true})
		require.NoError(t, err)
		assert.Equal(t, "ok", list.Message)
		require.Len(t, list.Sessions, 2)
		assert.EqualValues(t, 2, list.Sessions[1].ID)
		assert.Equal(t, map[string]string{"user_id": "3", "company_id": "7", "is_info_source": "1"}, gotQuery)
	})

	t.Run("child sessions", func(t *testing.T) {
		parent := int64(11)
		_, err := client.ListSessions(t.Context(), "tok", SessionFilter{UserID: 3, ParentSessionID: &parent})
		require.NoError(t, err)
		assert.Equal(t, "0", gotQuery["is_info_source"])
		assert.Equal(t, "11", gotQuery["parent_session_id"])
	})
}

func TestListSessions_Failure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListSessions(t.Context(), "tok", SessionFilter{UserID: 1})
	assert.ErrorIs(t, err, ErrSessionList)
}

func TestRequestUploadTarget(t *testing.T) {
	t.Run("sends prefix and bucket", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/files/upload", r.URL.Path)
			body := decodeBody(t, r)
			assert.Equal(t, "report.pdf", body["object_name"])
			assert.Equal(t, "7/9/42/norm", body["object_prefix"])
			assert.Equal(t, "audit-bucket", body["s3_bucket_name"])
			assert.EqualValues(t, 42, body["session_id"])
			assert.EqualValues(t, 1, body["analysis_type_id"])
			_, _ = w.Write([]byte(`{"url":"https://store.example.com","fields":{"key":"7/9/42/norm/report.pdf","policy":"p"}}`))
		}))

		target, err := client.RequestUploadTarget(t.Context(), "tok", 42, "report.pdf", "7/9/42/norm")
		require.NoError(t, err)
		assert.Equal(t, "https://store.example.com", target.URL)
		assert.Equal(t, "7/9/42/norm/report.pdf", target.Key())
	})

	t.Run("empty prefix is sent as null", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			v, ok := body["object_prefix"]
			assert.True(t, ok)
			assert.Nil(t, v)
			_, _ = w.Write([]byte(`{"url":"https://store.example.com","fields":{"key":"k"}}`))
		}))

		_, err := client.RequestUploadTarget(t.Context(), "tok", 1, "a.txt", "")
		require.NoError(t, err)
	})

	t.Run("missing key fails closed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"url":"https://store.example.com","fields":{}}`))
		}))

		_, err := client.RequestUploadTarget(t.Context(), "tok", 1, "a.txt", "")
		assert.ErrorIs(t, err, ErrPresign)
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestPerformUpload(t *testing.T) {
	t.Run("fields precede file part", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			mr, err := r.MultipartReader()
			require.NoError(t, err)

			var names []string
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				names = append(names, part.FormName())
				if part.FormName() == "file" {
					assert.Equal(t, "notes.txt", part.FileName())
					assert.Equal(t, "text/plain", part.Header.Get("Content-Type"))
					data, _ := io.ReadAll(part)
					assert.Equal(t, "hello", string(data))
				}
			}
			assert.Equal(t, []string{"key", "policy", "file"}, names)
			w.WriteHeader(http.StatusNoContent)
		}))

		srvURL := client.apiURL
		target := &UploadTarget{URL: srvURL + "/store", Fields: map[string]string{"policy": "p", "key": "k"}}
		require.NoError(t, client.PerformUpload(t.Context(), target, "notes.txt", []byte("hello"), "text/plain"))
	})

	t.Run("201 is not accepted", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

		target := &UploadTarget{URL: client.apiURL + "/store", Fields: map[string]string{"key": "k"}}
		err := client.PerformUpload(t.Context(), target, "a.bin", []byte{1}, "")
		assert.ErrorIs(t, err, ErrUpload)
	})
}

func TestTriggerSearch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/search", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, AuditContext, body["context"])
		assert.Equal(t, "audit-bucket", body["s3_bucket_name"])
		keys := body["s3_keys"].([]any)
		require.Len(t, keys, 1)
		first := keys[0].(map[string]any)
		assert.Equal(t, "a.pdf", first["name"])
		assert.Equal(t, "file", first["type"])
		demo := body["audit_demo"].(map[string]any)
		assert.Equal(t, "ACME", demo["axon_company"])
		assert.Equal(t, "norm", demo["norms_folder"])
		w.WriteHeader(http.StatusOK)
	}))

	err := client.TriggerSearch(t.Context(), "tok", SearchRequest{
		SessionID: 42,
		Files:     []UploadedFile{{Name: "a.pdf", StorageKey: "k", Type: "file"}},
		AuditDemo: AuditDetails{Company: "ACME", NormsFolder: "norm", AuditsFolder: "audits", ImageFormat: "svg"},
	})
	require.NoError(t, err)
}

func TestTriggerIngest(t *testing.T) {
	t.Run("returns new session id", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ingest_data", r.URL.Path)
			body := decodeBody(t, r)
			assert.Equal(t, "us-east-1", body["region"])
			assert.Equal(t, "7/9/42", body["object_prefix"])
			_, _ = w.Write([]byte(`{"session_id":777}`))
		}))

		id, err := client.TriggerIngest(t.Context(), "tok", IngestRequest{SessionID: 42, ObjectPrefix: "7/9/42"})
		require.NoError(t, err)
		assert.EqualValues(t, 777, id)
	})

	t.Run("rejected trigger", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := client.TriggerIngest(t.Context(), "tok", IngestRequest{SessionID: 42})
		assert.ErrorIs(t, err, ErrTrigger)
	})
}

func TestTaskStatus(t *testing.T) {
	t.Run("decodes status", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/task/status", r.URL.Path)
			assert.Equal(t, "42", r.URL.Query().Get("session_id"))
			assert.Equal(t, "1", r.URL.Query().Get("analysis_type_id"))
			_, _ = w.Write([]byte(`{"status":"completed","progress":100}`))
		}))

		st, err := client.TaskStatus(t.Context(), "tok", 42, AnalysisTypeAudit)
		require.NoError(t, err)
		assert.Equal(t, TaskCompleted, st.Status)
		assert.True(t, st.Terminal())
		assert.Contains(t, string(st.Raw), `"progress":100`)
	})

	t.Run("missing status fails closed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detail":"not found"}`))
		}))

		_, err := client.TaskStatus(t.Context(), "tok", 42, AnalysisTypeAudit)
		assert.ErrorIs(t, err, ErrStatus)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("pending is not terminal", func(t *testing.T) {
		st := &TaskStatus{Status: "processing"}
		assert.False(t, st.Terminal())
	})
}
