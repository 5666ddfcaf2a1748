package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Asset file names looked up under Config.AssetsDir.
const (
	schemaAssetFile     = "graph_schema.yaml"
	examplesAssetFile   = "cypher_examples.yaml"
	lexiconAssetFile    = "fusion_lexicon.yaml"
	vocabularyAssetFile = "vocabulary.yaml"
)

// Assets are the clinical data files read at boot: the graph schema text
// embedded in generation prompts, the few-shot query examples, the
// conflict lexicon for context fusion, and the vocabulary tables shared
// by the router and the risk detector. Each file is optional; a missing
// one keeps the compiled-in default.
type Assets struct {
	SchemaText    string
	Examples      []domain.CypherExample
	Affirmative   []string
	Negation      []string
	GraphCues     []string
	MetricAliases domain.MetricAliases
	DrugAliases   domain.DrugAliases
}

// LoadAssets reads the YAML assets under dir. A file that exists but
// does not parse is an error: silently reverting edited clinical
// vocabulary to defaults would be harder to notice than a failed boot.
func LoadAssets(dir string) (Assets, error) {
	assets := Assets{
		SchemaText:    defaultSchemaText,
		Examples:      defaultCypherExamples(),
		MetricAliases: defaultMetricAliases(),
		DrugAliases:   defaultDrugAliases(),
	}

	var schema struct {
		Schema string `yaml:"schema"`
	}
	if ok, err := readAsset(filepath.Join(dir, schemaAssetFile), &schema); err != nil {
		return Assets{}, err
	} else if ok && schema.Schema != "" {
		assets.SchemaText = schema.Schema
	}

	var examples struct {
		Examples []domain.CypherExample `yaml:"examples"`
	}
	if ok, err := readAsset(filepath.Join(dir, examplesAssetFile), &examples); err != nil {
		return Assets{}, err
	} else if ok && len(examples.Examples) > 0 {
		assets.Examples = examples.Examples
	}

	var lexicon struct {
		Affirmative []string `yaml:"affirmative"`
		Negation    []string `yaml:"negation"`
	}
	if ok, err := readAsset(filepath.Join(dir, lexiconAssetFile), &lexicon); err != nil {
		return Assets{}, err
	} else if ok {
		assets.Affirmative = lexicon.Affirmative
		assets.Negation = lexicon.Negation
	}

	var vocabulary struct {
		GraphCues     []string            `yaml:"graph_cues"`
		MetricAliases map[string][]string `yaml:"metric_aliases"`
		DrugAliases   map[string]string   `yaml:"drug_aliases"`
	}
	if ok, err := readAsset(filepath.Join(dir, vocabularyAssetFile), &vocabulary); err != nil {
		return Assets{}, err
	} else if ok {
		assets.GraphCues = vocabulary.GraphCues
		if len(vocabulary.MetricAliases) > 0 {
			assets.MetricAliases = vocabulary.MetricAliases
		}
		if len(vocabulary.DrugAliases) > 0 {
			assets.DrugAliases = vocabulary.DrugAliases
		}
	}

	return assets, nil
}

func readAsset(path string, out any) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read asset %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("parse asset %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

const defaultSchemaText = `节点:
  (d:Drug {id, name, en_name, max_daily_dose, starting_dose, timing, route})
  (c:Category {name})
  (b:Brand {name})
  (dis:Disease {name, type})
  (m:Metric {name, full_name, unit})
关系:
  (d)-[:BELONGS_TO]->(c)
  (b)-[:IS_BRAND_OF]->(d)
  (d)-[:TREATS]->(dis)
  (d)-[:FORBIDDEN_FOR {severity}]->(dis)
  (d)-[:CONTRAINDICATED_IF {operator, value, value_min, value_max, unit, severity}]->(m)
  (d)-[:DOSAGE_ADJUST_IF {operator, value, value_min, value_max, unit, severity}]->(m)`

func defaultCypherExamples() []domain.CypherExample {
	return []domain.CypherExample{
		{
			Question: "eGFR小于30的患者禁用哪些降糖药？",
			Cypher: `MATCH (d:Drug)-[r:CONTRAINDICATED_IF]->(m:Metric {name: 'eGFR'})
WHERE r.operator IN ['<', '<='] AND r.value >= 30
RETURN d.name AS 药品名称, r.operator AS 运算符, r.value AS 阈值, r.severity AS 严重程度`,
			Explanation: "低于阈值触发的规则中，阈值不低于患者数值的全部命中",
		},
		{
			Question: "双胍类降糖药有哪些？",
			Cypher: `MATCH (c:Category)<-[:BELONGS_TO]-(d:Drug)
WHERE c.name CONTAINS '双胍'
RETURN c.name AS 分类, COLLECT(d.name) AS 药品列表`,
		},
		{
			Question: "心力衰竭患者禁用哪些药物？",
			Cypher: `MATCH (d:Drug)-[r:FORBIDDEN_FOR]->(dis:Disease)
WHERE dis.name CONTAINS '心力衰竭'
RETURN d.name AS 药品名称, dis.name AS 禁忌疾病, r.severity AS 严重程度`,
		},
		{
			Question: "二甲双胍的商品名是什么？",
			Cypher: `MATCH (b:Brand)-[:IS_BRAND_OF]->(d:Drug)
WHERE d.name CONTAINS '二甲双胍'
RETURN d.name AS 药品名称, COLLECT(b.name) AS 商品名`,
		},
		{
			Question: "肾功能下降时哪些药需要调整剂量？",
			Cypher: `MATCH (d:Drug)-[r:DOSAGE_ADJUST_IF]->(m:Metric {name: 'eGFR'})
RETURN d.name AS 药品名称, r.operator AS 运算符, r.value AS 阈值, r.value_min AS 下限, r.value_max AS 上限`,
		},
	}
}

// defaultMetricAliases equates renal clearance spellings under eGFR, so
// a CrCl rule still fires on a profile that only reports eGFR. The rest
// map lab-report spellings onto the metric names the graph uses.
func defaultMetricAliases() domain.MetricAliases {
	return domain.MetricAliases{
		"eGFR":  {"egfr", "肾小球滤过率", "估算肾小球滤过率", "肾功能", "crcl", "肌酐清除率"},
		"Cr":    {"肌酐", "血肌酐"},
		"K":     {"血钾", "钾"},
		"ALT":   {"alt", "谷丙转氨酶", "丙氨酸氨基转移酶"},
		"AST":   {"ast", "谷草转氨酶", "天冬氨酸氨基转移酶"},
		"BMI":   {"bmi", "体重指数"},
		"HbA1c": {"hba1c", "糖化血红蛋白"},
	}
}

// defaultDrugAliases resolves common brand names and abbreviations to
// the generic names the graph keys on. English names are matched by the
// graph itself through en_name.
func defaultDrugAliases() domain.DrugAliases {
	return domain.DrugAliases{
		"二甲":  "二甲双胍",
		"格华止": "二甲双胍",
		"甲福明": "二甲双胍",
		"拜糖苹": "阿卡波糖",
		"卡博平": "阿卡波糖",
		"亚莫利": "格列美脲",
		"达美康": "格列齐特",
		"欧唐静": "恩格列净",
		"安达唐": "达格列净",
		"捷诺维": "西格列汀",
		"欧唐宁": "利格列汀",
		"诺和泰": "司美格鲁肽",
		"诺和力": "利拉鲁肽",
	}
}
