package nova

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

type common struct {
	TransactionID string `json:"transactionId"`
	UUID          string `json:"uuid,omitempty"`
}

type codeRef struct {
	Code string `json:"code"`
}

type uuidRef struct {
	UUID string `json:"uuid"`
}

type paging struct {
	StartRow     int `json:"startRow"`
	NumberOfRows int `json:"numberOfRows"`
}

type caseAttributes struct {
	Title      string `json:"title,omitempty"`
	CaseDate   string `json:"caseDate,omitempty"`
	CaseNumber string `json:"userFriendlyCaseNumber,omitempty"`
}

type classification struct {
	KleNumber       codeRef `json:"kleNumber"`
	ProceedingFacet codeRef `json:"proceedingFacet"`
}

type caseParty struct {
	Index              string `json:"index"`
	IdentificationType string `json:"identificationType"`
	Identification     string `json:"identification"`
	PartyRole          string `json:"partyRole"`
	Name               string `json:"name"`
}

type partyFilter struct {
	IdentificationType string `json:"identificationType"`
	Identification     string `json:"identification"`
}

type caseworkerRef struct {
	KSPIdentity struct {
		NovaUserID string `json:"novaUserId"`
		RacfID     string `json:"racfId"`
		FullName   string `json:"fullName"`
	} `json:"kspIdentity"`
}

type departmentRef struct {
	LosIdentity struct {
		AdministrativeUnitID int    `json:"administrativeUnitId"`
		FullName             string `json:"fullName"`
		UserKey              string `json:"userKey"`
	} `json:"losIdentity"`
}

type caseImport struct {
	Common                common         `json:"common"`
	CaseAttributes        caseAttributes `json:"caseAttributes"`
	CaseClassification    classification `json:"caseClassification"`
	State                 string         `json:"state"`
	Sensitivity           string         `json:"sensitivity"`
	CaseParties           []caseParty    `json:"caseParties"`
	Caseworker            caseworkerRef  `json:"caseworker"`
	ResponsibleDepartment departmentRef  `json:"responsibleDepartment"`
	SecurityUnit          departmentRef  `json:"securityUnit"`
}

type caseList struct {
	Common         common         `json:"common"`
	Paging         paging         `json:"paging"`
	CaseAttributes caseAttributes `json:"caseAttributes"`
	CaseParty      partyFilter    `json:"caseParty"`
}

type caseListResponse struct {
	Cases []struct {
		Common         common         `json:"common"`
		CaseAttributes caseAttributes `json:"caseAttributes"`
	} `json:"cases"`
}

type addressRequest struct {
	TransactionID string `json:"transactionId"`
	Cpr           string `json:"cpr"`
}

type addressResponse struct {
	Name    string `json:"name"`
	Address struct {
		AddressLine1 string `json:"addressLine1"`
		AddressLine2 string `json:"addressLine2"`
		AddressLine3 string `json:"addressLine3"`
		AddressLine4 string `json:"addressLine4"`
		AddressLine5 string `json:"addressLine5"`
	} `json:"address"`
}

type documentImport struct {
	Common           common        `json:"common"`
	CaseUUID         string        `json:"caseUuid"`
	Title            string        `json:"title"`
	Sensitivity      string        `json:"sensitivity"`
	DocumentType     string        `json:"documentType"`
	DocumentCategory uuidRef       `json:"documentCategory"`
	Description      string        `json:"description"`
	ApprovedState    string        `json:"approvedState"`
	Caseworker       caseworkerRef `json:"caseworker"`
	DocumentDate     string        `json:"documentDate"`
}

func (c *Client) endpoint(path string) string {
	return c.cfg.BaseURL + path + "?api-version=" + url.QueryEscape(c.cfg.APIVersion)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) upload(ctx context.Context, docUUID, fileName string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	path := fmt.Sprintf("/api/Document/UploadFile/%s/%s", uuid.NewString(), url.PathEscape(docUUID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: http status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
