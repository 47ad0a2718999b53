package mavlink

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFilesBundledDialect(t *testing.T) {
	schema := loadTestSchema(t)

	if len(schema.Messages) == 0 {
		t.Fatal("no messages loaded")
	}
	if _, ok := schema.Messages["HEARTBEAT"]; !ok {
		t.Fatal("HEARTBEAT missing from loaded schema")
	}
	if _, ok := schema.MessagesByID[0]; !ok {
		t.Fatal("message id 0 missing from MessagesByID")
	}
	if _, ok := schema.Enums["MAV_CMD"]; !ok {
		t.Fatal("MAV_CMD enum missing from loaded schema")
	}
}

func TestEnumEntryLookup(t *testing.T) {
	schema := loadTestSchema(t)

	enum := schema.Enums["MAV_TYPE"]
	entry, ok := enum.EntryByName("MAV_TYPE_QUADROTOR")
	if !ok || entry.Value != 2 {
		t.Fatalf("EntryByName(MAV_TYPE_QUADROTOR) = (%v, %v), want (2, true)", entry, ok)
	}

	byVal, ok := enum.EntryByValue(2)
	if !ok || byVal.Name != "MAV_TYPE_QUADROTOR" {
		t.Fatalf("EntryByValue(2) = (%v, %v), want MAV_TYPE_QUADROTOR", byVal, ok)
	}
}

func TestEnumMergeAcrossDocuments(t *testing.T) {
	dir := t.TempDir()

	doc1 := `<?xml version="1.0"?>
<mavlink>
  <enums>
    <enum name="MAV_TYPE">
      <entry name="MAV_TYPE_GENERIC" value="0"/>
    </enum>
  </enums>
  <messages>
    <message id="500" name="FIRST_DOC_MESSAGE">
      <field type="uint8_t" name="a">a</field>
    </message>
  </messages>
</mavlink>`

	doc2 := `<?xml version="1.0"?>
<mavlink>
  <enums>
    <enum name="MAV_TYPE">
      <entry name="MAV_TYPE_CUSTOM" value="100"/>
    </enum>
  </enums>
  <messages>
    <message id="501" name="SECOND_DOC_MESSAGE">
      <field type="uint8_t" name="b">b</field>
    </message>
  </messages>
</mavlink>`

	if err := os.WriteFile(filepath.Join(dir, "a.xml"), []byte(doc1), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.xml"), []byte(doc2), 0644); err != nil {
		t.Fatal(err)
	}

	schema, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	enum := schema.Enums["MAV_TYPE"]
	if len(enum.Entries) != 2 {
		t.Fatalf("merged MAV_TYPE has %d entries, want 2", len(enum.Entries))
	}
	if _, ok := enum.EntryByName("MAV_TYPE_CUSTOM"); !ok {
		t.Fatal("MAV_TYPE_CUSTOM missing after merge")
	}
	if _, ok := schema.Messages["FIRST_DOC_MESSAGE"]; !ok {
		t.Fatal("FIRST_DOC_MESSAGE missing")
	}
	if _, ok := schema.Messages["SECOND_DOC_MESSAGE"]; !ok {
		t.Fatal("SECOND_DOC_MESSAGE missing")
	}
}

func TestDuplicateMessageIDRejected(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0"?>
<mavlink>
  <messages>
    <message id="9" name="FOO">
      <field type="uint8_t" name="a">a</field>
    </message>
    <message id="9" name="BAR">
      <field type="uint8_t" name="b">b</field>
    </message>
  </messages>
</mavlink>`
	if err := os.WriteFile(filepath.Join(dir, "dup.xml"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected an error for duplicate message id 9")
	}
}

func TestDuplicateMessageNameRejected(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0"?>
<mavlink>
  <messages>
    <message id="10" name="FOO">
      <field type="uint8_t" name="a">a</field>
    </message>
    <message id="11" name="FOO">
      <field type="uint8_t" name="b">b</field>
    </message>
  </messages>
</mavlink>`
	if err := os.WriteFile(filepath.Join(dir, "dup.xml"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadDir(dir)
	if err == nil {
		t.Fatal("expected an error for duplicate message name FOO")
	}
}

func TestFieldExtensionsAppendedAfterReordering(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0"?>
<mavlink>
  <messages>
    <message id="600" name="EXT_MSG">
      <field type="uint8_t" name="a">a</field>
      <extensions/>
      <field type="uint32_t" name="b">b, a bigger type but still an extension</field>
    </message>
  </messages>
</mavlink>`
	if err := os.WriteFile(filepath.Join(dir, "ext.xml"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	schema, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	msg := schema.Messages["EXT_MSG"]

	if len(msg.FieldsReordered) != 1 || msg.FieldsReordered[0].Name != "a" {
		t.Fatalf("FieldsReordered = %+v, want just [a]", msg.FieldsReordered)
	}
	if len(msg.AllFieldsReordered) != 2 || msg.AllFieldsReordered[1].Name != "b" {
		t.Fatalf("AllFieldsReordered = %+v, want [a, b] with b last despite its larger size", msg.AllFieldsReordered)
	}
}
