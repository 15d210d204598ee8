package rss

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category is a topic fed by one or more search queries.
type Category struct {
	Name    string   `yaml:"name"`
	Queries []string `yaml:"queries"`
}

// CategoriesConfig is the YAML file layout:
//
//	categories:
//	  - name: finance
//	    queries:
//	      - "global markets OR equities"
type CategoriesConfig struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories are processed in this order when no file is configured.
func DefaultCategories() []Category {
	return []Category{
		{Name: "sea", Queries: []string{
			"Southeast Asia",
			"Vietnam OR Thailand OR Cambodia OR Singapore OR Malaysia OR Indonesia OR Philippines",
			"东南亚 OR 越南 OR 泰国 OR 柬埔寨 OR 新加坡 OR 马来西亚 OR 印度尼西亚 OR 菲律宾",
		}},
		{Name: "finance", Queries: []string{
			"global markets OR equities OR bonds OR commodities OR crypto",
			"Federal Reserve OR interest rates OR inflation OR CPI OR PPI OR dollar",
			"财经 OR 金融 OR 利率 OR 通胀 OR 美联储 OR 汇率 OR 股票 OR 债券 OR 大宗商品 OR 加密货币",
		}},
		{Name: "war", Queries: []string{
			"war OR conflict OR fighting OR offensive OR strikes",
			"战争 OR 冲突 OR 交火 OR 前线 OR 停火 OR 以色列 OR 乌克兰 OR 加沙 OR 红海 OR 台海",
		}},
	}
}

// LoadCategories reads the category list from a YAML file.
func LoadCategories(path string) ([]Category, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg CategoriesConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing categories file: %w", err)
	}
	for i, c := range cfg.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i+1)
		}
		if len(c.Queries) == 0 {
			return nil, fmt.Errorf("category %q has no queries", c.Name)
		}
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("no categories in %s", path)
	}
	return cfg.Categories, nil
}
