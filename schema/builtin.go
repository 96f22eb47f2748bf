package schema

import "github.com/c360studio/registrygraph/predicate"

// BuiltinSet returns the seed schema set covering the registry formats
// the ingestion corpus is known to contain: EIS person extracts,
// vehicle registrations, EDR subject details, DRFO income sources,
// DRACS civil acts, ERD proxies, and real-estate rights. Use it to
// bootstrap an empty schema backend; production deployments replace it
// with curated schemas.
func BuiltinSet() SchemaSet {
	return SchemaSet{
		Entities:      builtinEntities(),
		Registers:     builtinRegisters(),
		Relationships: builtinRelationships(),
	}
}

// NewBuiltinRegistry compiles the builtin set.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(BuiltinSet())
}

func strProp(name string, change ChangeType, normalize ...string) PropertySchema {
	return PropertySchema{Name: name, Type: "string", ChangeType: change, Normalize: normalize}
}

func identityKey(when []string, props ...string) IdentityKey {
	return IdentityKey{When: IdentityWhen{Exists: when}, Properties: props}
}

func builtinEntities() []*EntitySchema {
	return []*EntitySchema{
		{
			EntityName: "Person",
			Graph:      GraphEntityConfig{Labels: []string{"Person"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"rnokpp"}, "rnokpp"),
				identityKey([]string{"unzr"}, "unzr"),
				identityKey([]string{"full_name"}, "full_name"),
			},
			Properties: []PropertySchema{
				strProp("rnokpp", ChangeImmutable, "trim"),
				strProp("unzr", ChangeImmutable, "trim"),
				strProp("birth_date", ChangeImmutable, "trim"),
				strProp("birth_place", ChangeRarelyChanged, "clean"),
				strProp("gender", ChangeImmutable, "trim", "lower"),
				strProp("citizenship", ChangeRarelyChanged, "trim"),
				strProp("first_name", ChangeRarelyChanged, "clean"),
				strProp("last_name", ChangeRarelyChanged, "clean"),
				strProp("middle_name", ChangeRarelyChanged, "clean"),
				strProp("full_name", ChangeRarelyChanged, "clean"),
				strProp("registry_source", ChangeDynamic),
			},
		},
		{
			EntityName: "Vehicle",
			Graph:      GraphEntityConfig{Labels: []string{"Vehicle"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"vin"}, "vin"),
			},
			Properties: []PropertySchema{
				strProp("vin", ChangeImmutable, "trim", "upper"),
				strProp("make", ChangeImmutable, "clean"),
				strProp("model", ChangeImmutable, "clean"),
				strProp("year", ChangeImmutable, "trim"),
				strProp("color", ChangeRarelyChanged, "clean"),
				strProp("registration_number", ChangeDynamic, "trim", "upper"),
			},
		},
		{
			EntityName: "Document",
			Graph:      GraphEntityConfig{Labels: []string{"Document"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"series", "number"}, "series", "number"),
				identityKey([]string{"number"}, "number"),
			},
			Properties: []PropertySchema{
				strProp("series", ChangeImmutable, "trim", "upper"),
				strProp("number", ChangeImmutable, "trim"),
				strProp("date_issue", ChangeImmutable, "trim"),
				strProp("issued_by", ChangeRarelyChanged, "clean"),
				strProp("doc_type", ChangeRarelyChanged, "trim"),
			},
		},
		{
			EntityName: "Organization",
			Graph:      GraphEntityConfig{Labels: []string{"Organization"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"org_code"}, "org_code"),
			},
			Properties: []PropertySchema{
				strProp("org_code", ChangeImmutable, "trim"),
				strProp("name", ChangeRarelyChanged, "clean"),
				strProp("org_type", ChangeRarelyChanged, "trim"),
			},
		},
		{
			EntityName: "TaxAgent",
			Graph:      GraphEntityConfig{Labels: []string{"TaxAgent"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"org_code"}, "org_code"),
			},
			Properties: []PropertySchema{
				strProp("org_code", ChangeImmutable, "trim"),
				strProp("name", ChangeRarelyChanged, "clean"),
			},
		},
		{
			EntityName: "CivilEvent",
			Graph:      GraphEntityConfig{Labels: []string{"CivilEvent"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"act_number"}, "act_number", "event_type"),
			},
			Properties: []PropertySchema{
				strProp("act_number", ChangeImmutable, "trim"),
				strProp("event_type", ChangeImmutable, "trim", "lower"),
				strProp("date", ChangeImmutable, "trim"),
				strProp("registry_office", ChangeRarelyChanged, "clean"),
			},
		},
		{
			EntityName: "Property",
			Graph:      GraphEntityConfig{Labels: []string{"Property"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"reg_num"}, "reg_num"),
			},
			Properties: []PropertySchema{
				strProp("reg_num", ChangeImmutable, "trim"),
				strProp("cad_num", ChangeImmutable, "trim"),
				strProp("re_type", ChangeRarelyChanged, "trim"),
				strProp("area", ChangeRarelyChanged, "trim"),
				strProp("area_unit", ChangeRarelyChanged, "trim"),
				strProp("state", ChangeDynamic, "trim"),
			},
		},
		{
			EntityName: "OwnershipRight",
			Graph:      GraphEntityConfig{Labels: []string{"OwnershipRight"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"right_id"}, "right_id"),
			},
			Properties: []PropertySchema{
				strProp("right_id", ChangeImmutable, "trim"),
				strProp("right_type", ChangeRarelyChanged, "trim"),
				strProp("right_reg_date", ChangeImmutable, "trim"),
				strProp("share", ChangeRarelyChanged, "trim"),
				strProp("registrar", ChangeRarelyChanged, "clean"),
			},
		},
		{
			EntityName: "IncomeRecord",
			Graph:      GraphEntityConfig{Labels: []string{"IncomeRecord"}, PrimaryKey: "node_id"},
			Properties: []PropertySchema{
				strProp("income_amount", ChangeImmutable, "trim"),
				strProp("income_paid", ChangeImmutable, "trim"),
				strProp("tax_amount", ChangeImmutable, "trim"),
				strProp("income_type_code", ChangeImmutable, "trim"),
				strProp("period_id", ChangeImmutable, "trim"),
				strProp("person_id", ChangeImmutable, "trim"),
			},
		},
		{
			EntityName: "Period",
			Graph:      GraphEntityConfig{Labels: []string{"Period"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"year", "quarter"}, "year", "quarter"),
			},
			Properties: []PropertySchema{
				strProp("year", ChangeImmutable, "trim"),
				strProp("quarter", ChangeImmutable, "trim"),
			},
		},
		{
			EntityName: "Address",
			Graph:      GraphEntityConfig{Labels: []string{"Address"}, PrimaryKey: "node_id"},
			Properties: []PropertySchema{
				strProp("region", ChangeRarelyChanged, "clean"),
				strProp("district", ChangeRarelyChanged, "clean"),
				strProp("city", ChangeRarelyChanged, "clean"),
				strProp("street", ChangeRarelyChanged, "clean"),
				strProp("house", ChangeRarelyChanged, "trim"),
				strProp("apartment", ChangeRarelyChanged, "trim"),
				strProp("address_line", ChangeRarelyChanged, "clean"),
				strProp("koatuu", ChangeImmutable, "trim"),
			},
		},
		{
			EntityName: "Identifier",
			Graph:      GraphEntityConfig{Labels: []string{"Identifier"}, PrimaryKey: "node_id"},
			IdentityKeys: []IdentityKey{
				identityKey([]string{"identifier_type", "identifier_value"}, "identifier_type", "identifier_value"),
			},
			Properties: []PropertySchema{
				strProp("identifier_type", ChangeImmutable, "trim", "lower"),
				strProp("identifier_value", ChangeImmutable, "trim"),
			},
		},
	}
}

func simpleRel(name, relType, fromLabel, toLabel, fromRef, toRef string, props ...RelProperty) *RelationshipSchema {
	return &RelationshipSchema{
		RelationshipName: name,
		Graph:            RelGraphConfig{Type: relType, Direction: "out", FromLabel: fromLabel, ToLabel: toLabel},
		CreationRules: []CreationRule{
			{
				Bind: RelBind{
					From: RelBindRef{EntityRef: fromRef},
					To:   RelBindRef{EntityRef: toRef},
				},
				Properties: props,
			},
		},
	}
}

func builtinRelationships() []*RelationshipSchema {
	role := func(value string) RelProperty {
		return RelProperty{Name: "role", Value: value}
	}
	return []*RelationshipSchema{
		simpleRel("Person_HAS_DOCUMENT_Document", "HAS_DOCUMENT", "Person", "Document", "Subject", "IdentityDocument"),
		simpleRel("Person_OWNS_VEHICLE_Vehicle", "OWNS_VEHICLE", "Person", "Vehicle", "Owner", "Car", role("owner")),
		simpleRel("Person_INVOLVED_IN_CivilEvent", "INVOLVED_IN", "Person", "CivilEvent", "Child", "Event", role("child")),
		simpleRel("Person_HAS_RIGHT_OwnershipRight", "HAS_RIGHT", "Person", "OwnershipRight", "RightHolder", "Right", role("owner")),
		simpleRel("OwnershipRight_RIGHT_TO_Property", "RIGHT_TO", "OwnershipRight", "Property", "Right", "Asset"),
		simpleRel("TaxAgent_PAID_INCOME_IncomeRecord", "PAID_INCOME", "TaxAgent", "IncomeRecord", "Agent", "Income"),
		simpleRel("Person_HAS_INCOME_IncomeRecord", "HAS_INCOME", "Person", "IncomeRecord", "Recipient", "Income"),
		simpleRel("IncomeRecord_FOR_PERIOD_Period", "FOR_PERIOD", "IncomeRecord", "Period", "Income", "TaxPeriod"),
		simpleRel("Person_HAS_ADDRESS_Address", "HAS_ADDRESS", "Person", "Address", "Subject", "Residence",
			RelProperty{Name: "relationship_type", Value: "registered"}),
		simpleRel("Property_LOCATED_AT_Address", "LOCATED_AT", "Property", "Address", "Asset", "AssetAddress"),
		simpleRel("Person_HAS_IDENTIFIER_Identifier", "HAS_IDENTIFIER", "Person", "Identifier", "Subject", "SubjectIdentifier"),
	}
}

func exists(path string) predicate.RuleSpec {
	return predicate.RuleSpec{Type: predicate.KindExists, Path: path}
}

func mapTo(id, foreach, source string, targets ...Target) *Mapping {
	return &Mapping{
		MappingID: id,
		Scope:     MappingScope{Foreach: foreach},
		Source:    MappingSource{JSONPath: source},
		Targets:   targets,
	}
}

func target(entity, property, ref string) Target {
	return Target{Entity: entity, Property: property, EntityRef: ref}
}

func builtinRegisters() []*RegisterSchema {
	eisResult := "$.data.root.result"
	eisDocs := eisResult + ".documents[*]"

	carScope := "$.data.root.CARS[*]"

	edrSubject := "$.data.Envelope.Body.SubjectDetail2ExtResponse.Subject[*]"
	edrFounder := edrSubject + ".founders.founder[*]"
	edrHead := edrSubject + ".heads.head[*]"

	drfoDecl := "$.data.Envelope.Body.InfoIncomeSourcesDRFO2Response.declarations.declaration[*]"

	dracsBirth := "$.data.Envelope.Body.GetBirthArByChildNameAndBirthDateResponse.acts.act[*]"

	erdProxy := "$.data.Envelope.Body.ProxyInfoResponse.proxies.proxy[*]"

	srAsset := "$.data.Envelope.Body.RealEstateResponse.assets.asset[*]"
	srRight := srAsset + ".rights.right[*]"

	constantMapping := func(id, foreach string, value any, targets ...Target) *Mapping {
		return &Mapping{
			MappingID: id,
			Scope:     MappingScope{Foreach: foreach},
			Transform: &TransformSpec{Kind: "constant", Value: value},
			Targets:   targets,
		}
	}

	return []*RegisterSchema{
		{
			RegistryCode: "EIS",
			ServiceCode:  "PERSON",
			Variants: []*Variant{
				{
					VariantID: "eis_person_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists(eisResult),
						exists(eisResult + ".last_name"),
					}},
					Mappings: []*Mapping{
						mapTo("subject", "", eisResult+".rnokpp", target("Person", "rnokpp", "Subject")),
						mapTo("subject", "", eisResult+".unzr", target("Person", "unzr", "Subject")),
						mapTo("subject", "", eisResult+".last_name", target("Person", "last_name", "Subject")),
						mapTo("subject", "", eisResult+".first_name", target("Person", "first_name", "Subject")),
						mapTo("subject", "", eisResult+".middle_name", target("Person", "middle_name", "Subject")),
						mapTo("subject", "", eisResult+".date_birth", target("Person", "birth_date", "Subject")),
						mapTo("subject", "", eisResult+".gender", target("Person", "gender", "Subject")),
						mapTo("document", eisDocs, "$.series", target("Document", "series", "IdentityDocument")),
						mapTo("document", eisDocs, "$.number", target("Document", "number", "IdentityDocument")),
						mapTo("document", eisDocs, "$.date_issue", target("Document", "date_issue", "IdentityDocument")),
						mapTo("document", eisDocs, "$.dep_out", target("Document", "issued_by", "IdentityDocument")),
					},
				},
			},
		},
		{
			RegistryCode: "MVS",
			ServiceCode:  "VEHICLE",
			Variants: []*Variant{
				{
					VariantID: "vehicle_owner_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.root.CARS"),
					}},
					Mappings: []*Mapping{
						mapTo("car", carScope, "$.VIN", target("Vehicle", "vin", "Car")),
						mapTo("car", carScope, "$.BRAND", target("Vehicle", "make", "Car")),
						mapTo("car", carScope, "$.MODEL", target("Vehicle", "model", "Car")),
						mapTo("car", carScope, "$.MAKE_YEAR", target("Vehicle", "year", "Car")),
						mapTo("car", carScope, "$.COLOR", target("Vehicle", "color", "Car")),
						mapTo("car", carScope, "$.N_REG_NEW", target("Vehicle", "registration_number", "Car")),
						mapTo("owner", carScope, "$.OWNER.CODE", target("Person", "rnokpp", "Owner")),
						mapTo("owner", carScope, "$.OWNER.LNAME", target("Person", "last_name", "Owner")),
						mapTo("owner", carScope, "$.OWNER.FNAME", target("Person", "first_name", "Owner")),
					},
				},
			},
		},
		{
			RegistryCode: "EDR",
			ServiceCode:  "SUBJECT",
			MethodCode:   "SubjectDetail2Ext",
			Variants: []*Variant{
				{
					VariantID: "edr_subject_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.Envelope.Body.SubjectDetail2ExtResponse"),
					}},
					Mappings: []*Mapping{
						mapTo("company", edrSubject, "$.code", target("Organization", "org_code", "Company")),
						mapTo("company", edrSubject, "$.names.display", target("Organization", "name", "Company")),
						mapTo("founder", edrFounder, "$.name", target("Person", "full_name", "Founder")),
						mapTo("founder", edrFounder, "$.code", target("Person", "rnokpp", "Founder")),
						mapTo("head", edrHead, "$.last_name", target("Person", "last_name", "Head")),
						mapTo("head", edrHead, "$.first_middle_name", target("Person", "full_name", "Head")),
						mapTo("head", edrHead, "$.rnokpp", target("Person", "rnokpp", "Head")),
					},
				},
			},
		},
		{
			RegistryCode: "DRFO",
			ServiceCode:  "INCOME",
			MethodCode:   "InfoIncomeSourcesDRFO2Query",
			Variants: []*Variant{
				{
					VariantID: "drfo_income_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.Envelope.Body.InfoIncomeSourcesDRFO2Response"),
					}},
					Mappings: []*Mapping{
						mapTo("income", drfoDecl, "$.incomeAmount", target("IncomeRecord", "income_amount", "Income")),
						mapTo("income", drfoDecl, "$.incomePaid", target("IncomeRecord", "income_paid", "Income")),
						mapTo("income", drfoDecl, "$.taxAmount", target("IncomeRecord", "tax_amount", "Income")),
						mapTo("income", drfoDecl, "$.periodId", target("IncomeRecord", "period_id", "Income")),
						mapTo("income", drfoDecl, "$.personId", target("IncomeRecord", "person_id", "Income")),
						mapTo("agent", drfoDecl, "$.orgName", target("TaxAgent", "name", "Agent")),
						mapTo("agent", drfoDecl, "$.orgCode", target("TaxAgent", "org_code", "Agent")),
						mapTo("period", drfoDecl, "$.period.year", target("Period", "year", "TaxPeriod")),
						mapTo("period", drfoDecl, "$.period.quarter", target("Period", "quarter", "TaxPeriod")),
					},
				},
			},
		},
		{
			RegistryCode: "DRACS",
			ServiceCode:  "CIVIL_ACTS",
			MethodCode:   "GetBirthArByChildNameAndBirthDate",
			Variants: []*Variant{
				{
					VariantID: "dracs_birth_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.Envelope.Body.GetBirthArByChildNameAndBirthDateResponse"),
					}},
					Mappings: []*Mapping{
						mapTo("event", dracsBirth, "$.actNumber", target("CivilEvent", "act_number", "Event")),
						mapTo("event", dracsBirth, "$.actDate", target("CivilEvent", "date", "Event")),
						constantMapping("event", dracsBirth, "birth", target("CivilEvent", "event_type", "Event")),
						mapTo("child", dracsBirth, "$.child.lastName", target("Person", "last_name", "Child")),
						mapTo("child", dracsBirth, "$.child.firstName", target("Person", "first_name", "Child")),
						mapTo("child", dracsBirth, "$.child.middleName", target("Person", "middle_name", "Child")),
					},
				},
			},
		},
		{
			RegistryCode: "ERD",
			ServiceCode:  "PROXY",
			Variants: []*Variant{
				{
					VariantID: "erd_proxy_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.Envelope.Body.ProxyInfoResponse"),
					}},
					Mappings: []*Mapping{
						mapTo("grantor", erdProxy, "$.grantor.name", target("Person", "full_name", "Grantor")),
						mapTo("grantor", erdProxy, "$.grantor.inn", target("Person", "rnokpp", "Grantor")),
					},
				},
			},
		},
		{
			RegistryCode: "SR",
			ServiceCode:  "REAL_ESTATE",
			Variants: []*Variant{
				{
					VariantID: "sr_property_v1",
					MatchPredicate: predicate.Spec{All: []predicate.RuleSpec{
						exists("$.data.Envelope.Body.RealEstateResponse"),
					}},
					Mappings: []*Mapping{
						mapTo("asset", srAsset, "$.registrationNumber", target("Property", "reg_num", "Asset")),
						mapTo("asset", srAsset, "$.cadNum", target("Property", "cad_num", "Asset")),
						mapTo("asset", srAsset, "$.area", target("Property", "area", "Asset")),
						mapTo("right", srRight, "$.id", target("OwnershipRight", "right_id", "Right")),
						mapTo("right", srRight, "$.rightType", target("OwnershipRight", "right_type", "Right")),
					},
				},
			},
		},
	}
}
