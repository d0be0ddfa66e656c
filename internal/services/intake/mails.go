package intake

import (
	"errors"
	"regexp"
	"strings"
)

const (
	subjectRejected = "Folkeregisterbøder: Anmodning afvist"
	subjectAccepted = "Folkeregisterbøder: Anmodning modtaget"
	subjectStatus   = "Status folkeregisterbøder"
	subjectResult   = "Resultat af folkeregisterbøder"

	bodyRejected = "Den angivne az-ident er ikke på listen over godkendte brugere, og anmodningen er derfor blevet afvist.\n\nVenlig hilsen\nRobotten"
	bodyAccepted = "Din anmodning om behandling af sager vedr. folkeregisterbøder er modtaget.\n\nVenlig hilsen\nRobotten"
	bodyStatus   = "Her er det foreløbige resultat på din anmodning om udsendelse af folkeregisterbøder.\n\nVenlig hilsen\nRobotten"
	bodyResult   = "Her er resultatet på din anmodning om udsendelse af folkeregisterbøder.\n\nVenlig hilsen\nRobotten"

	bodyInvalidSheet = "Det vedhæftede regneark kunne ikke læses, og anmodningen er derfor blevet afvist.\n\nFejl: %v\n\nVenlig hilsen\nRobotten"

	ReportFileName = "Folkregisterbøder.xlsx"
)

var (
	ErrMalformedRequest = errors.New("request mail is missing BrugerE-mail or AZ-ident")

	emailPattern = regexp.MustCompile(`BrugerE-mail: (.+?)AZ-ident`)
	identPattern = regexp.MustCompile(`AZ-ident: (.+?)Excel`)
)

// Request is what the intake form mail says about the requester.
type Request struct {
	Email string
	Ident string
}

// ParseRequest reads the requester from the text of an intake form mail.
func ParseRequest(body string) (Request, error) {
	em := emailPattern.FindStringSubmatch(body)
	id := identPattern.FindStringSubmatch(body)
	if em == nil || id == nil {
		return Request{}, ErrMalformedRequest
	}
	r := Request{Email: strings.TrimSpace(em[1]), Ident: strings.TrimSpace(id[1])}
	if r.Email == "" || r.Ident == "" {
		return Request{}, ErrMalformedRequest
	}
	return r, nil
}
