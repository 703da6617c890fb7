package session

import (
	"bytes"
	"encoding/xml"

	"github.com/rosterd/corexmpp/internal/caps"
)

type discoInfoXML struct {
	Identity []struct {
		Category string `xml:"category,attr"`
		Type     string `xml:"type,attr"`
		Lang     string `xml:"lang,attr"`
		Name     string `xml:"name,attr"`
	} `xml:"identity"`
	Feature []struct {
		Var string `xml:"var,attr"`
	} `xml:"feature"`
	X []struct {
		Field []struct {
			Var   string   `xml:"var,attr"`
			Value []string `xml:"value"`
		} `xml:"field"`
	} `xml:"jabber:x:data x"`
}

// parseDiscoInfo decodes a disco#info <query/> payload (the innerxml of an
// iq reply) into a caps.Info ready for Ver/Verify (spec.md §6).
func parseDiscoInfo(payload []byte) (caps.Info, error) {
	var doc discoInfoXML
	if err := xml.NewDecoder(bytes.NewReader(payload)).Decode(&doc); err != nil {
		return caps.Info{}, err
	}

	info := caps.Info{}
	for _, id := range doc.Identity {
		info.Identities = append(info.Identities, caps.Identity{
			Category: id.Category, Type: id.Type, Lang: id.Lang, Name: id.Name,
		})
	}
	for _, f := range doc.Feature {
		info.Features = append(info.Features, f.Var)
	}
	for _, x := range doc.X {
		var form caps.Form
		for _, fld := range x.Field {
			if fld.Var == "FORM_TYPE" && len(fld.Value) == 1 {
				form.FormType = fld.Value[0]
				continue
			}
			form.Fields = append(form.Fields, caps.Field{Var: fld.Var, Values: fld.Value})
		}
		info.Forms = append(info.Forms, form)
	}
	return info, nil
}
