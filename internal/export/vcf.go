package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-vcard"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/normalize"
)

// ProductID is written as PRODID on every exported card.
const ProductID = "-//vcard-normalizer//EN"

// Supported output versions.
const (
	Version3 = "3.0"
	Version4 = "4.0"
)

// Options controls vCard serialisation.
type Options struct {
	// Version is "3.0" or "4.0". Empty means 4.0.
	Version string
	// Provenance writes one X-VCARD-NORMALIZER-SOURCE property per source
	// label so a later read can restore it.
	Provenance bool
	// Now stamps REV. Zero means the current time.
	Now time.Time
}

func (o Options) version() string {
	if o.Version == Version3 {
		return Version3
	}
	return Version4
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now.UTC()
}

// ValidVersion reports whether v is a supported output version.
func ValidVersion(v string) bool {
	return v == Version3 || v == Version4
}

// WriteVCF serialises contacts to one file in order. Each record is encoded
// on its own; a record that fails is skipped and counted. The file is
// replaced atomically.
func WriteVCF(path string, contacts []*model.Contact, opts Options) (Result, error) {
	res := Result{Path: path}
	err := writeAtomic(path, func(w io.Writer) error {
		var err error
		res.Written, res.Skipped, err = encodeAll(w, contacts, opts)
		return err
	})
	if err != nil {
		return Result{Path: path}, err
	}
	logResult("vcf", res)
	return res, nil
}

// WriteIndividual writes one .vcf file per contact into dir, named after the
// contact's display name.
func WriteIndividual(dir string, contacts []*model.Contact, opts Options) (Result, error) {
	res := Result{Path: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, eris.Wrapf(err, "export: create dir %s", dir)
	}
	used := make(map[string]int)
	for _, c := range contacts {
		data, err := Encode(c, opts)
		if err != nil {
			res.Skipped++
			zap.L().Warn("export: skipped contact", zap.String("contact", c.Label()), zap.Error(err))
			continue
		}
		name := safe(c.Label(), "contact")
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		path := filepath.Join(dir, name+".vcf")
		if err := writeAtomic(path, func(w io.Writer) error {
			_, err := w.Write(data)
			return eris.Wrap(err, "export: write card")
		}); err != nil {
			return res, err
		}
		res.Written++
	}
	logResult("individual", res)
	return res, nil
}

func encodeAll(w io.Writer, contacts []*model.Contact, opts Options) (written, skipped int, err error) {
	for _, c := range contacts {
		data, encErr := Encode(c, opts)
		if encErr != nil {
			skipped++
			zap.L().Warn("export: skipped contact", zap.String("contact", c.Label()), zap.Error(encErr))
			continue
		}
		if _, err := w.Write(data); err != nil {
			return written, skipped, eris.Wrap(err, "export: write card")
		}
		written++
	}
	return written, skipped, nil
}

func logResult(format string, res Result) {
	l := zap.L().With(zap.String("format", format), zap.String("path", res.Path),
		zap.Int("written", res.Written), zap.Int("skipped", res.Skipped))
	if res.Skipped > 0 {
		l.Warn("export: some contacts could not be written")
		return
	}
	l.Info("export: wrote contacts")
}

// Encode serialises a single contact.
func Encode(c *model.Contact, opts Options) ([]byte, error) {
	card, err := Card(c, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, eris.Wrap(err, "export: encode")
	}
	return buf.Bytes(), nil
}

// Card builds the wire record for a contact.
func Card(c *model.Contact, opts Options) (vcard.Card, error) {
	v := opts.version()
	card := make(vcard.Card)
	add := func(name, value string, params vcard.Params) {
		card[name] = append(card[name], &vcard.Field{Value: value, Params: params})
	}

	add(vcard.FieldVersion, v, nil)
	add(vcard.FieldProductID, ProductID, nil)
	add(vcard.FieldRevision, opts.now().Format("2006-01-02T15:04:05Z"), nil)

	fn := strings.TrimSpace(c.FN)
	if fn == "" {
		fn = c.Name.Display()
	}
	if fn == "" {
		fn = c.Org
	}
	if fn == "" {
		fn = "Unnamed"
	}
	add(vcard.FieldFormattedName, fn, nil)

	if !c.Name.IsZero() || v == Version3 {
		n := c.Name
		add(vcard.FieldName, structured(n.Family, n.Given, n.Additional, n.Prefix, n.Suffix), nil)
	}
	if c.UID != "" {
		add(vcard.FieldUID, c.UID, nil)
	}

	for _, e := range c.Emails {
		var p vcard.Params
		if v == Version3 {
			p = vcard.Params{vcard.ParamType: {"INTERNET"}}
		}
		add(vcard.FieldEmail, e, p)
	}
	for _, ph := range c.Phones {
		var p vcard.Params
		if ph.Type != "" {
			p = vcard.Params{vcard.ParamType: {ph.Type}}
		}
		add(vcard.FieldTelephone, ph.Number, p)
	}
	if c.Org != "" {
		add(vcard.FieldOrganization, c.Org, nil)
	}
	if c.Title != "" {
		add(vcard.FieldTitle, c.Title, nil)
	}
	for _, a := range c.Addresses {
		add(vcard.FieldAddress, structured(a.POBox, a.Extended, a.Street, a.Locality, a.Region, a.PostalCode, a.Country), nil)
	}

	switch {
	case c.Kind == model.KindUnset:
	case v == Version4:
		add(vcard.FieldKind, string(c.Kind), nil)
	case c.Kind == model.KindOrg:
		add("X-ABSHOWAS", "COMPANY", nil)
	default:
		add("X-ADDRESSBOOKSERVER-KIND", string(c.Kind), nil)
	}

	// Commas inside a label are escaped so the label reads back whole.
	for _, cat := range model.SortedSet(c.Categories) {
		add(vcard.FieldCategories, normalize.EscapeCategory(cat), nil)
	}

	if c.Birthday != nil {
		if bd := c.Birthday.Value(); bd != "" {
			add(vcard.FieldBirthday, bd, nil)
		}
	}
	if c.Anniversary != nil {
		if ad := c.Anniversary.Value(); ad != "" {
			name := vcard.FieldAnniversary
			if v == Version3 {
				name = "X-ANNIVERSARY"
			}
			add(name, ad, nil)
		}
	}

	for _, r := range c.Related {
		p := vcard.Params{vcard.ParamType: {r.Type}}
		if r.UID != "" {
			add(vcard.FieldRelated, "urn:uuid:"+r.UID, p)
			continue
		}
		p[vcard.ParamValue] = []string{"text"}
		add(vcard.FieldRelated, r.Text, p)
	}
	for _, m := range c.Members {
		name := vcard.FieldMember
		if v == Version3 {
			name = "X-ADDRESSBOOKSERVER-MEMBER"
		}
		add(name, "urn:uuid:"+m, nil)
	}
	if c.Note != "" {
		add(vcard.FieldNote, c.Note, nil)
	}

	// Retained extension properties from the source record.
	keys := make([]string, 0, len(c.Raw))
	for k := range c.Raw {
		if strings.HasPrefix(strings.ToUpper(k), "X-") && !strings.EqualFold(k, model.SourceProperty) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, exists := card[k]; exists {
			continue
		}
		for _, f := range c.Raw[k] {
			cp := *f
			card[k] = append(card[k], &cp)
		}
	}

	if opts.Provenance {
		for _, s := range c.Sources {
			add(model.SourceProperty, s, nil)
		}
	}

	for name, fields := range card {
		for _, f := range fields {
			if !utf8.ValidString(f.Value) {
				return nil, eris.Errorf("export: %s holds invalid UTF-8", name)
			}
		}
	}
	return card, nil
}

// structured joins components with ';'. Semicolons inside a component have
// no escape the encoder preserves, so they become commas.
func structured(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, ";", ",")
	}
	return strings.Join(parts, ";")
}
