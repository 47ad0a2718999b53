package mavlink

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Schema is the process-wide, immutable-after-Load registry of enums and
// messages built from one or more dialect XML documents.
type Schema struct {
	Enums        map[string]*Enum
	Messages     map[string]*Message
	MessagesByID map[uint32]*Message
}

func newSchema() *Schema {
	return &Schema{
		Enums:        make(map[string]*Enum),
		Messages:     make(map[string]*Message),
		MessagesByID: make(map[uint32]*Message),
	}
}

// xmlMAVLink mirrors the MAVLink 1.0 dialect XML schema: a top-level
// <mavlink> with <enums> and <messages>.
type xmlMAVLink struct {
	XMLName xml.Name    `xml:"mavlink"`
	Enums   []xmlEnum   `xml:"enums>enum"`
	Message []xmlMsg    `xml:"messages>message"`
}

type xmlEnum struct {
	Name        string     `xml:"name,attr"`
	Description string     `xml:"description"`
	Entries     []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Name        string     `xml:"name,attr"`
	Value       string     `xml:"value,attr"`
	Description string     `xml:"description"`
	Params      []xmlParam `xml:"param"`
}

type xmlParam struct {
	Index   string `xml:"index,attr"`
	Content string `xml:",chardata"`
}

type xmlMsg struct {
	Name        string       `xml:"name,attr"`
	ID          string       `xml:"id,attr"`
	Description string       `xml:"description"`
	Fields      []xmlField   `xml:",any"`
}

type xmlField struct {
	XMLName     xml.Name
	Name        string `xml:"name,attr"`
	Type        string `xml:"type,attr"`
	Enum        string `xml:"enum,attr"`
	Display     string `xml:"display,attr"`
	PrintFormat string `xml:"print_format,attr"`
	Units       string `xml:"units,attr"`
}

// LoadDir builds a Schema from every *.xml file found directly under each
// of the given directories. Directories are processed in the order given
// and files within each in lexical order (as filepath.Glob returns them);
// enums sharing a name across files are merged by appending entries.
func LoadDir(dirs ...string) (*Schema, error) {
	var files []string
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.xml"))
		if err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("glob %s: %v", dir, err)}
		}
		files = append(files, matches...)
	}
	return LoadFiles(files...)
}

// LoadFiles builds a Schema from an explicit list of dialect XML files.
func LoadFiles(paths ...string) (*Schema, error) {
	schema := newSchema()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := schema.loadDocument(data); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

// loadDocument parses a single dialect XML document into schema, merging
// enums by name and failing on duplicate message ids.
func (s *Schema) loadDocument(data []byte) error {
	var doc xmlMAVLink
	if err := xml.Unmarshal(data, &doc); err != nil {
		return &SchemaError{Reason: "malformed XML: " + err.Error()}
	}

	for _, e := range doc.Enums {
		if e.Name == "" {
			return &SchemaError{Reason: "enum missing name attribute"}
		}
		enum, err := buildEnum(e)
		if err != nil {
			return err
		}
		if existing, ok := s.Enums[e.Name]; ok {
			existing.merge(enum)
		} else {
			s.Enums[e.Name] = enum
		}
	}

	for _, m := range doc.Message {
		msg, err := s.buildMessage(m)
		if err != nil {
			return err
		}
		if _, dup := s.Messages[msg.Name]; dup {
			return &SchemaError{Reason: "duplicate message name: " + msg.Name}
		}
		if _, dup := s.MessagesByID[msg.ID]; dup {
			return &SchemaError{Reason: fmt.Sprintf("duplicate message id: %d", msg.ID)}
		}
		s.Messages[msg.Name] = msg
		s.MessagesByID[msg.ID] = msg
	}

	return nil
}

func buildEnum(x xmlEnum) (*Enum, error) {
	enum := newEnum(x.Name, x.Description)

	entries := make([]xmlEntry, len(x.Entries))
	copy(entries, x.Entries)

	for _, xe := range entries {
		if xe.Name == "" {
			return nil, &SchemaError{Reason: "entry missing name attribute in enum " + x.Name}
		}
		value, err := strconv.ParseInt(xe.Value, 0, 64)
		if err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("entry %s.%s has invalid value %q", x.Name, xe.Name, xe.Value)}
		}

		params := make([]xmlParam, len(xe.Params))
		copy(params, xe.Params)
		sort.SliceStable(params, func(i, j int) bool {
			ii, _ := strconv.Atoi(params[i].Index)
			jj, _ := strconv.Atoi(params[j].Index)
			return ii < jj
		})
		paramStrs := make([]string, len(params))
		for i, p := range params {
			paramStrs[i] = p.Content
		}

		enum.addEntry(Entry{
			Name:        xe.Name,
			Value:       value,
			Description: xe.Description,
			Params:      paramStrs,
		})
	}

	return enum, nil
}

func (s *Schema) buildMessage(x xmlMsg) (*Message, error) {
	if x.Name == "" {
		return nil, &SchemaError{Reason: "message missing name attribute"}
	}
	if x.ID == "" {
		return nil, &SchemaError{Reason: "message " + x.Name + " missing id attribute"}
	}
	id, err := strconv.ParseUint(x.ID, 10, 32)
	if err != nil {
		return nil, &SchemaError{Reason: "message " + x.Name + " has invalid id " + x.ID}
	}

	msg := &Message{
		Name:        x.Name,
		ID:          uint32(id),
		Description: x.Description,
	}

	inExtensions := false
	for _, xf := range x.Fields {
		if xf.XMLName.Local == "extensions" {
			inExtensions = true
			continue
		}
		if xf.XMLName.Local != "field" {
			continue
		}
		if xf.Name == "" || xf.Type == "" {
			return nil, &SchemaError{Reason: "field in message " + x.Name + " missing name or type attribute"}
		}

		field, err := parseFieldType(xf.Type)
		if err != nil {
			return nil, err
		}
		field.Name = xf.Name
		field.EnumName = xf.Enum
		field.Display = xf.Display
		field.PrintFormat = xf.PrintFormat
		field.Units = xf.Units

		if inExtensions {
			msg.FieldExtensions = append(msg.FieldExtensions, field)
		} else {
			msg.Fields = append(msg.Fields, field)
		}
	}

	msg.finalize()
	return msg, nil
}
