package tableau

import (
	"strconv"
	"strings"
	"time"
)

// Kind is an artifact kind stored on the server.
type Kind string

const (
	KindWorkbook   Kind = "workbook"
	KindDatasource Kind = "datasource"
)

// Kinds returns every artifact kind in backup order.
func Kinds() []Kind {
	return []Kind{KindWorkbook, KindDatasource}
}

// Collection returns the REST collection name ("workbooks", "datasources").
func (k Kind) Collection() string { return string(k) + "s" }

// ArchiveExt returns the extension of the compound download for k.
func (k Kind) ArchiveExt() string {
	if k == KindDatasource {
		return ".tdsx"
	}
	return ".twbx"
}

func (k Kind) String() string { return string(k) }

// Site is one tenant on the server.
type Site struct {
	ID         string
	Name       string
	ContentURL string
}

// Artifact is a workbook or data source as listed by the server.
type Artifact struct {
	Kind        Kind
	ID          string
	Name        string
	ProjectID   string
	ProjectName string
	UpdatedAt   time.Time
}

// ServerInfo is the subset of /serverinfo the client uses.
type ServerInfo struct {
	ProductVersion string
	Build          string
	RESTAPIVersion string
}

// Session is the result of a successful sign-in.
type Session struct {
	Token      string
	SiteID     string
	ContentURL string
	UserID     string
}

// flexInt accepts both JSON numbers and numeric strings; the server sends
// pagination fields as strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type pagination struct {
	PageNumber     flexInt `json:"pageNumber"`
	PageSize       flexInt `json:"pageSize"`
	TotalAvailable flexInt `json:"totalAvailable"`
}

type serverInfoResponse struct {
	ServerInfo struct {
		ProductVersion struct {
			Value string `json:"value"`
			Build string `json:"build"`
		} `json:"productVersion"`
		RESTAPIVersion string `json:"restApiVersion"`
	} `json:"serverInfo"`
}

type signInRequest struct {
	Credentials signInCredentials `json:"credentials"`
}

type signInCredentials struct {
	Name     string     `json:"name"`
	Password string     `json:"password"`
	Site     siteObject `json:"site"`
}

type siteObject struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	ContentURL string `json:"contentUrl"`
}

type signInResponse struct {
	Credentials struct {
		Token string     `json:"token"`
		Site  siteObject `json:"site"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"credentials"`
}

type sitesResponse struct {
	Pagination pagination `json:"pagination"`
	Sites      struct {
		Site []siteObject `json:"site"`
	} `json:"sites"`
}

type artifactObject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updatedAt"`
	Project   struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

type artifactsResponse struct {
	Pagination pagination `json:"pagination"`
	Workbooks  struct {
		Workbook []artifactObject `json:"workbook"`
	} `json:"workbooks"`
	Datasources struct {
		Datasource []artifactObject `json:"datasource"`
	} `json:"datasources"`
}

func (r *artifactsResponse) items(kind Kind) []artifactObject {
	if kind == KindDatasource {
		return r.Datasources.Datasource
	}
	return r.Workbooks.Workbook
}

func (o artifactObject) toArtifact(kind Kind) Artifact {
	a := Artifact{
		Kind:        kind,
		ID:          o.ID,
		Name:        o.Name,
		ProjectID:   o.Project.ID,
		ProjectName: o.Project.Name,
	}
	if t, err := time.Parse(time.RFC3339, o.UpdatedAt); err == nil {
		a.UpdatedAt = t.UTC()
	}
	return a
}
