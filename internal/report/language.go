// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"strings"

	"golang.org/x/text/language"
)

// Normalized language codes.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

var chineseAliases = map[string]bool{
	"zh": true, "zh-cn": true, "zh-hans": true, "chinese": true, "cn": true,
	"中文": true, "汉语": true, "简体中文": true,
}

// NormalizeLanguage maps a free-form language name to LangChinese or
// LangEnglish. Any BCP 47 tag whose base language is Chinese counts as
// Chinese; everything else renders in English.
func NormalizeLanguage(raw string) string {
	low := strings.ToLower(strings.TrimSpace(raw))
	if chineseAliases[low] {
		return LangChinese
	}
	if tag, err := language.Parse(low); err == nil {
		if base, conf := tag.Base(); conf != language.No && base.String() == "zh" {
			return LangChinese
		}
	}
	return LangEnglish
}

// labels holds per-template, per-language phrases.
var labels = map[string]map[string]map[string]string{
	"query_result.md.tmpl": {
		LangEnglish: {
			"heading":         "Query Result",
			"query":           "Query",
			"effective_query": "Effective Query",
			"total":           "Total Results (API date-filtered)",
			"window":          "Date Window",
			"indexed":         "Indexed Results",
			"published":       "Published",
			"category":        "Category",
			"url":             "URL",
		},
		LangChinese: {
			"heading":         "查询结果",
			"query":           "原始 Query",
			"effective_query": "实际 Query",
			"total":           "结果数量（API 已按日期过滤）",
			"window":          "时间窗口",
			"indexed":         "索引结果列表",
			"published":       "发布时间",
			"category":        "分类",
			"url":             "链接",
		},
	},
	"paper_metadata.md.tmpl": {
		LangEnglish: {
			"heading":          "Paper Metadata",
			"arxiv_id":         "ArXiv ID",
			"versioned_id":     "Versioned ID",
			"title":            "Title",
			"authors":          "Authors",
			"primary_category": "Primary Category",
			"categories":       "Categories",
			"published":        "Published",
			"updated":          "Updated",
			"abs_url":          "Abs URL",
			"pdf_url":          "PDF URL",
			"labels":           "Selected From Query Labels",
			"comment":          "Comment",
			"journal_ref":      "Journal Ref",
			"abstract":         "Abstract",
		},
		LangChinese: {
			"heading":          "论文元数据",
			"arxiv_id":         "ArXiv 编号",
			"versioned_id":     "版本编号",
			"title":            "标题",
			"authors":          "作者",
			"primary_category": "主分类",
			"categories":       "全部分类",
			"published":        "发布时间",
			"updated":          "更新时间",
			"abs_url":          "摘要页链接",
			"pdf_url":          "PDF 链接",
			"labels":           "来自查询标签",
			"comment":          "备注",
			"journal_ref":      "期刊信息",
			"abstract":         "摘要",
		},
	},
	"papers_index.md.tmpl": {
		LangEnglish: {
			"heading":   "Paper Index",
			"category":  "Category",
			"published": "Published",
			"directory": "Directory",
			"metadata":  "Metadata",
		},
		LangChinese: {
			"heading":   "论文索引",
			"category":  "分类",
			"published": "发布时间",
			"directory": "目录",
			"metadata":  "元数据",
		},
	},
	"task_meta.md.tmpl": {
		LangEnglish: {
			"heading":          "Task Metadata",
			"request":          "Request",
			"topic":            "Topic",
			"keywords":         "Keywords",
			"categories":       "Categories",
			"none":             "(none)",
			"target_range":     "Target Range",
			"window":           "Date Window",
			"lookback":         "Lookback",
			"language":         "Language",
			"notes":            "Notes",
			"workflow":         "Workflow Status",
			"step_planning":    "Query planning",
			"step_retrieval":   "Per-query retrieval",
			"step_filtering":   "Per-query relevance filtering",
			"step_merge":       "Merge and dedupe",
			"layout":           "Directory Layout",
			"layout_results":   "raw result lists for each query",
			"layout_selection": "selected keep indexes and merged list",
			"layout_papers":    "per-paper metadata output after merge",
		},
		LangChinese: {
			"heading":          "任务元信息",
			"request":          "请求参数",
			"topic":            "主题",
			"keywords":         "关键词",
			"categories":       "分类",
			"none":             "(无)",
			"target_range":     "目标数量范围",
			"window":           "时间窗口",
			"lookback":         "回看范围",
			"language":         "语言",
			"notes":            "备注",
			"workflow":         "流程状态",
			"step_planning":    "查询规划",
			"step_retrieval":   "分查询检索",
			"step_filtering":   "相关性筛选",
			"step_merge":       "合并与去重",
			"layout":           "目录结构",
			"layout_results":   "每个查询的原始结果列表",
			"layout_selection": "保留索引或ID及合并列表",
			"layout_papers":    "合并后每篇论文的元数据目录",
		},
	},
}

func labelsFor(name, lang string) map[string]string {
	if lang != LangChinese {
		lang = LangEnglish
	}
	return labels[name][lang]
}
